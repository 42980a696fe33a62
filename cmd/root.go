package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/contaflow/docextract/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "docextract",
	Short: "Multi-provider document extraction pipeline",
	Long:  "Extracts structured invoice and receipt data through competing LLM providers, merges results by consensus, and calibrates confidence with an online-learned model.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
