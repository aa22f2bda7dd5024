// Package commands defines all Cobra CLI commands for the docqa binary.
package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/54b3r/docqa-go/internal/audit"
	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFiles holds the --env-file flag values.
var envFiles []string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docqa",
		Short: "docqa answers questions from the documents and videos you ingest",
		Long: `docqa is a retrieval-augmented question answering service.

Sources (PDFs, web pages, plain text, video transcripts) are split into
overlapping chunks, embedded and stored in a vector index. Questions are
answered by a chat model using only the most relevant chunks of the
sources you select.

Model and embedding providers are selected via MODEL_PROVIDER and
EMBEDDING_PROVIDER, or a YAML config file (~/.docqa/config.yaml).
See 'docqa --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env files only fill variables the shell left unset.
			if len(envFiles) > 0 {
				if err := godotenv.Load(envFiles...); err != nil {
					return fmt.Errorf("env file: %w", err)
				}
			}

			log := logging.Init()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// YAML may have changed LOG_LEVEL or LOG_FORMAT.
			log = logging.Init()

			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)

			flags := map[string]string{}
			cmd.Flags().Visit(func(f *pflag.Flag) {
				flags[f.Name] = f.Value.String()
			})
			audit.LogCommandStart(ctx, log, audit.Invocation{
				Command:    cmd.Name(),
				ConfigPath: loadedConfigPath,
				EnvFiles:   envFiles,
				Flags:      flags,
			})

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docqa/config.yaml)")
	root.PersistentFlags().StringArrayVar(&envFiles, "env-file", nil, "Load environment variables from a .env file (repeatable)")

	root.AddCommand(
		NewIngestCmd(),
		NewAskCmd(),
		NewDeleteCmd(),
		NewSourcesCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
