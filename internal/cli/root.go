package cli

import (
	"github.com/spf13/cobra"

	"github.com/sagestack-io/sagestack/internal/logging"
)

var (
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "sagestack",
	Short: "SageMaker Code Editor stack tooling",
	Long: `Sagestack assembles the Code Editor CloudFormation template and implements
the custom-resource handlers the stack relies on:
  • Studio lifecycle configs with an auto-stop-idle script
  • Default VPC and subnet lookup
  • Code Editor space provisioning`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel, logJSON)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(handleCmd)
	rootCmd.AddCommand(versionCmd)
}
