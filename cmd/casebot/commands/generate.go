package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/casebot-go/internal/generation"
	"github.com/54b3r/casebot-go/internal/logging"
)

// NewGenerateCmd constructs the `casebot generate` command, which sends a raw
// prompt straight to the generation backend with no retrieval. It is the
// quickest way to check that a self-hosted model behind a tunnel is reachable.
func NewGenerateCmd() *cobra.Command {
	var stream bool

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Send a raw prompt to the generation backend",
		Long: `Send a prompt verbatim to the configured generation backend and print
the reply. No case records are retrieved and no system instruction is added.

Examples:
  casebot generate "Say hello in one sentence."
  GENERATION_BACKEND=selfhosted SELFHOSTED_URL=https://example.ngrok.app/api/generate \
    casebot generate --stream "Why is the sky blue?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			out := cmd.OutOrStdout()

			handlers, flush := setupTracing(log)
			defer flush()

			gen, settings, err := generation.NewFromEnv(ctx, nil, handlers...)
			if err != nil {
				return presentError(ctx, err)
			}
			if !cmd.Flags().Changed("stream") {
				stream = settings.StreamDefault
			}

			req := generation.Request{Raw: strings.Join(args, " ")}
			var resp *generation.Response
			if stream {
				resp, err = gen.Stream(ctx, req, func(chunk string) error {
					_, werr := fmt.Fprint(out, chunk)
					return werr
				})
				fmt.Fprintln(out)
			} else {
				resp, err = gen.Generate(ctx, req)
				if resp != nil && resp.Text != "" {
					fmt.Fprintln(out, resp.Text)
				}
			}

			if resp != nil {
				log.Debug("generate finished",
					slog.String("backend", gen.Backend()),
					slog.String("state", string(resp.State)),
					slog.Int("attempts", resp.Attempts),
				)
			}
			if err != nil {
				return presentError(ctx, err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&stream, "stream", false, "Print the reply as it is generated (default SELFHOSTED_STREAM)")

	return cmd
}
