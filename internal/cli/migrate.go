package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"lpar_inventory/internal/seed"
)

func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.log.Sync()
			if _, err := e.open(cmd); err != nil {
				return err
			}
			e.log.Info("Migrations applied")
			return nil
		},
	}
}

func NewSeedCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a fixture of sample inventory",
		Long: `Load vendors, software, packages, customers and LPARs from a YAML fixture.
Without --file the built-in sample inventory is loaded. Rows that already
exist are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadFixture(file)
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.log.Sync()
			gdb, err := e.open(cmd)
			if err != nil {
				return err
			}
			stats, err := seed.Apply(cmd.Context(), gdb, e.log, f)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"created %d vendors, %d software, %d versions, %d packages, %d customers, %d lpars, %d installations\n",
				stats.Vendors, stats.Software, stats.Versions, stats.Packages,
				stats.Customers, stats.LPARs, stats.Installations)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "fixture file (YAML)")
	return cmd
}

func loadFixture(path string) (seed.Fixture, error) {
	if path == "" {
		return seed.Default()
	}
	return seed.ParseFile(path)
}
