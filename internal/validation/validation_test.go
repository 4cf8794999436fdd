package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpar_inventory/internal/apperr"
)

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	return ae.Field
}

func TestVar_Code(t *testing.T) {
	tests := []struct {
		code string
		ok   bool
	}{
		{"ACME", true},
		{"PROD_01-A", true},
		{"A", false},
		{"", false},
		{"acme", false},
		{"HAS SPACE", false},
		{strings.Repeat("X", 21), false},
	}
	for _, tt := range tests {
		err := Var("code", tt.code, CodeRule)
		if tt.ok {
			assert.NoError(t, err, tt.code)
		} else {
			assert.Equal(t, "code", fieldOf(t, err), tt.code)
		}
	}
}

func TestVar_CountsRunes(t *testing.T) {
	assert.NoError(t, Var("name", "é"+strings.Repeat("x", 99), NameRule))
	assert.Error(t, Var("name", strings.Repeat("x", 101), NameRule))
	assert.Error(t, Var("name", "x", NameRule))
	assert.NoError(t, Var("ptf_level", "", PtfRule))
	assert.Error(t, Var("ptf_level", strings.Repeat("9", 51), PtfRule))
}

type row struct {
	Version string `json:"version" validate:"required,max=50"`
}

type form struct {
	Name         string     `json:"name" validate:"required,min=2,max=100"`
	Email        string     `json:"contact_email" validate:"omitempty,email"`
	ReleaseDate  time.Time  `json:"release_date"`
	EndOfSupport *time.Time `json:"end_of_support" validate:"omitempty,gtefield=ReleaseDate"`
	Rows         []row      `json:"rows" validate:"dive"`
}

func TestStruct_FieldNames(t *testing.T) {
	release := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	later := release.AddDate(1, 0, 0)
	earlier := release.AddDate(-1, 0, 0)

	assert.NoError(t, Struct(form{Name: "ok", ReleaseDate: release, EndOfSupport: &later}))

	err := Struct(form{Name: "x"})
	assert.Equal(t, "name", fieldOf(t, err))
	assert.Contains(t, err.Error(), "at least 2 characters")

	assert.Equal(t, "contact_email", fieldOf(t, Struct(form{Name: "ok", Email: "nope"})))
	assert.Equal(t, "end_of_support", fieldOf(t, Struct(form{Name: "ok", ReleaseDate: release, EndOfSupport: &earlier})))
	assert.Equal(t, "rows[1].version", fieldOf(t, Struct(form{Name: "ok", Rows: []row{{"V1"}, {""}}})))
}
