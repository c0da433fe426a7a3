// Package commands defines all Cobra CLI commands for the casebot binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/casebot-go/internal/audit"
	"github.com/54b3r/casebot-go/internal/config"
	"github.com/54b3r/casebot-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "casebot",
		Short: "casebot answers questions about police disciplinary cases",
		Long: `casebot answers natural-language questions about police disciplinary
case records. Each question is embedded, matched against a vector index of
case records, and answered by a language model grounded in the retrieved
cases, with dates and links to the source documents.

The generation backend is selected with GENERATION_BACKEND (selfhosted,
gemini, openai, azure, ark, ollama). Settings come from the environment, a
.env file, or a YAML config file (~/.casebot/config.yaml); environment
variables always win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// The .env and YAML layers may set LOG_LEVEL, so the final
			// logger is built after they load.
			src, err := config.LoadAll(configPath, logging.New())
			if err != nil {
				return err
			}

			log := logging.New()
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), src.YAML)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.casebot/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewSearchCmd(),
		NewGenerateCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
