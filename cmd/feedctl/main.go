// Command feedctl is the operator CLI for the situation feed. It runs the
// same pipeline as the server, once, in process.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/logger"
)

var (
	flagConfig  string
	flagVerbose bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "feedctl",
	Short:         "Operate the situation feed pipeline",
	Long:          "feedctl runs one refresh of the situation feed in process and prints the result, or shows the effective configuration.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if flagVerbose {
			level = "debug"
		}
		logger.Setup(level, "text")

		loaded, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		// One-shot runs never publish analytics.
		loaded.Kafka.Enabled = false
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log at debug level, including span trees")

	rootCmd.AddCommand(liveCmd)
	rootCmd.AddCommand(marketsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "feedctl:", err)
		os.Exit(1)
	}
}
