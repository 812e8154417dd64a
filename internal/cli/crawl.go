package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rohmanhakim/pod-crawler/internal/logging"
	"github.com/rohmanhakim/pod-crawler/internal/orchestrator"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run the crawl: orchestrator plus all pod processes.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		log := logging.NewProcessLogger(cfg.LogDir(), 0, logging.OrchestratorRole)

		orch, err := orchestrator.New(cfg, cfgFile, log)
		if err != nil {
			log.Error().Err(err).Msg("orchestrator setup failed")
			os.Exit(1)
		}

		ctx, cancel := signalContext()
		defer cancel()

		if err := orch.Run(ctx); err != nil {
			log.Error().Err(err).Msg("crawl failed")
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(crawlCmd)
}
