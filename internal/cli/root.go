package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rohmanhakim/pod-crawler/internal/build"
	"github.com/rohmanhakim/pod-crawler/internal/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pod-crawler",
	Short: "A polite, pod-structured web crawler for a single large host.",
	Long: `pod-crawler sustains thousands of fetches per second on one
multi-socket host. Domains are sharded across pods — each pod owns a KV
store plus a set of fetcher and parser processes pinned to dedicated cores.
The crawler obeys per-domain robots.txt and crawl-delay policy, deduplicates
discovered URLs through a bloom filter, and persists extracted text plus
visit metadata to local storage.

Start a crawl with:

  pod-crawler crawl --config crawler.yaml`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pod-crawler %s (built %s)\n", build.FullVersion(), build.BuildTime)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (e.g., crawler.yaml)")
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (config.Config, error) {
	if cfgFile == "" {
		return config.Config{}, fmt.Errorf("--config is required")
	}
	return config.WithConfigFile(cfgFile)
}

// signalContext returns a context cancelled by SIGTERM or SIGINT. SIGTERM is
// the orchestrator's graceful-shutdown signal for children.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}
