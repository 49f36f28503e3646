package main

import (
	"medication-reminder/internal/config"
	"medication-reminder/internal/platform/logger"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "medremind",
	Short: "medremind schedules medication doses and tracks what was taken",
	Long:  "medremind serves the medication reminder API: medications with recurring schedules, an append-only dose log, caregivers and pending-dose reconciliation.",
	// sin subcomando = serve
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (env MEDREMIND_* overrides)")
	rootCmd.AddCommand(serveCmd, migrateCmd, nextCmd)
}

func loadConfig() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: logger.ParseFormat(cfg.Log.Format),
		App:    cfg.App.Name,
	})
	return cfg, log, nil
}
