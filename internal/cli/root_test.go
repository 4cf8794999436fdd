package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpar_inventory/internal/auth"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "lpar-inventory", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "migrate", "seed", "token"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	seedCmd, _, err := cmd.Find([]string{"seed"})
	require.NoError(t, err)
	fileFlag := seedCmd.Flags().Lookup("file")
	require.NotNil(t, fileFlag)
	assert.Equal(t, "f", fileFlag.Shorthand)

	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	require.NotNil(t, serveCmd.Flags().Lookup("port"))

	tokenCmd, _, err := cmd.Find([]string{"token"})
	require.NoError(t, err)
	ttl := tokenCmd.Flags().Lookup("ttl")
	require.NotNil(t, ttl)
	assert.Equal(t, "24h0m0s", ttl.DefValue)
}

// isolate runs the test from an empty directory so no .env is picked up.
func isolate(t *testing.T) string {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("APP_ENV", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", filepath.Join(dir, "inventory.db"))
	t.Setenv("DB_LOG_LEVEL", "silent")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	isolate(t)
	t.Setenv("JWT_SECRET", "cli-secret")

	out, err := run(t, "token", "operator-7", "--email", "op@example.com")
	require.NoError(t, err)

	claims := &auth.Claims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("cli-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "operator-7", claims.UserID)
	assert.Equal(t, "op@example.com", claims.Email)

	_, err = run(t, "token")
	assert.Error(t, err)
}

func TestSeedCommand_IsIdempotent(t *testing.T) {
	isolate(t)

	out, err := run(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "created 2 vendors, 3 software, 7 versions, 2 packages, 2 customers, 3 lpars, 7 installations")

	out, err = run(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "created 0 vendors")
}

func TestSeedCommand_MissingFile(t *testing.T) {
	dir := isolate(t)
	_, err := run(t, "seed", "--file", filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestMigrateCommand_RejectsUnknownDriver(t *testing.T) {
	isolate(t)
	t.Setenv("DB_DRIVER", "oracle")
	_, err := run(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported DB_DRIVER")
}

// chdir is the pre-Go 1.24 equivalent of t.Chdir.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
