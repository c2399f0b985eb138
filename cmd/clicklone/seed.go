package main

import (
	"github.com/spf13/cobra"

	app "github.com/clicklone/clicklone/internal/app"
	"github.com/clicklone/clicklone/internal/config"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load default settings and SEO entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		seed, err := config.LoadSeed(seedFile)
		if err != nil {
			return err
		}
		if cfg.StorageDriver == config.DriverMemory {
			log.Warn("seeding the memory driver has no lasting effect")
		}
		application, err := app.New(cmd.Context(), cfg, app.Overrides{}, log)
		if err != nil {
			return err
		}
		defer application.Stop(cmd.Context())
		return application.Seed(cmd.Context(), seed)
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "config/seed.yaml", "seed YAML file")
}
