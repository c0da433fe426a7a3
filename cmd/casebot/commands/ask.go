package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/casebot-go/internal/logging"
	"github.com/54b3r/casebot-go/internal/pipeline"
)

// NewAskCmd constructs the `casebot ask` command, which answers one question
// grounded in the retrieved case records and prints the sources after it.
func NewAskCmd() *cobra.Command {
	var (
		topK   int
		stream bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about police disciplinary cases",
		Long: `Ask a natural language question about police disciplinary cases.

The question is matched against the case index and the closest records are
handed to the language model, which answers with case dates and links.
When every match scores below LOW_CONFIDENCE_THRESHOLD the answer says so.

Examples:
  casebot ask "excessive force cases in 2020"
  casebot ask --top-k 10 "cases involving body camera violations"
  GENERATION_BACKEND=selfhosted casebot ask --stream "suspensions for dishonesty"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			out := cmd.OutOrStdout()

			handlers, flush := setupTracing(log)
			defer flush()

			a, err := buildApp(ctx, log, nil, handlers...)
			if err != nil {
				return presentError(ctx, err)
			}
			defer a.Close(log)

			if !cmd.Flags().Changed("stream") {
				stream = a.genSettings.StreamDefault
			}

			if !a.embedder.Loaded() {
				log.Info("loading the embedding model; the first question may take a while")
			}

			question := strings.Join(args, " ")
			opts := pipeline.Options{TopK: topK}

			var res *pipeline.Result
			if stream {
				res, err = a.pipeline.AskStream(ctx, question, opts, nil, func(chunk string) error {
					_, werr := fmt.Fprint(out, chunk)
					return werr
				})
				fmt.Fprintln(out)
			} else {
				res, err = a.pipeline.Ask(ctx, question, opts)
				if res != nil && res.Answer != "" {
					fmt.Fprintln(out, res.Answer)
				}
			}

			if res != nil && len(res.Records) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Sources:")
				printRecords(out, res.Records, res.Context.LowConfidence)
			}
			if err != nil {
				return presentError(ctx, err)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of case records to retrieve (default RAG_TOP_K, clamped to RAG_MAX_TOP_K)")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print the answer as it is generated (default SELFHOSTED_STREAM)")

	return cmd
}
