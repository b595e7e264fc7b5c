package commands

import (
	"context"
	"fmt"
	"os"

	"certassist-backend/lib/configutil"
	"certassist-backend/lib/scrapers/tnedistrict"

	"github.com/spf13/cobra"
)

type Config struct {
	Database configutil.Database `json:"database"`
	Scraper  tnedistrict.Config  `json:"scraper"`
}

func readConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		// the CLI is useful without a config file; defaults cover it
		return Config{Scraper: tnedistrict.DefaultConfig()}
	}
	cfg.Scraper = cfg.Scraper.WithDefaults()
	return cfg
}

var rootCmd = &cobra.Command{
	Use:   "certassist-cli",
	Short: "certassist-cli checks certificate statuses and manages fulfillment jobs from the terminal.",
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
