package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/med-material/HandStrengthener/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "trialctl",
	Short: "Trial session controller for hand-strengthening BCI studies",
	Long: "Runs timed input-window trials, resolves each against its designed goal " +
		"(Accept, Reject or Fabricate) and records the outcome.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
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
