package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lpar_inventory/internal/config"
	"lpar_inventory/internal/db"
	"lpar_inventory/internal/logger"
)

const serviceName = "lpar-inventory"

// NewRootCommand creates the root command of the inventory service.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lpar-inventory",
		Short: "Mainframe LPAR software inventory",
		Long: `Tracks which software versions are installed on which LPARs, checks them
against released packages, and deploys, rolls back and clones inventory.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewMigrateCommand())
	cmd.AddCommand(NewSeedCommand())
	cmd.AddCommand(NewTokenCommand())

	return cmd
}

// env is what every command needs: configuration and a logger.
type env struct {
	cfg config.Config
	log *zap.Logger
}

func loadEnv() (*env, error) {
	cfg, envLoaded, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		ServiceName: serviceName,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(log)
	if !envLoaded {
		log.Debug("No .env file found, using process environment")
	}
	return &env{cfg: cfg, log: log}, nil
}

// open connects to the configured database and brings the schema up to date.
func (e *env) open(cmd *cobra.Command) (*gorm.DB, error) {
	gdb, err := db.Connect(e.cfg.DB, e.log)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(cmd.Context(), gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}
