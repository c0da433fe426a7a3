package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/logging"
	"github.com/54b3r/casebot-go/internal/prompt"
)

// NewSearchCmd constructs the `casebot search` command, which runs retrieval
// only: no generation backend is contacted or required.
func NewSearchCmd() *cobra.Command {
	var (
		topK       int
		showPrompt bool
	)

	cmd := &cobra.Command{
		Use:   "search [question]",
		Short: "List the case records a question retrieves, without generating an answer",
		Long: `Embed a question, query the case index, and print the ranked records.

Useful for checking index connectivity and relevance without spending
generation tokens. --show-prompt prints the exact prompt ask would send.

Examples:
  casebot search "excessive force cases in 2020"
  casebot search --top-k 5 --show-prompt "retaliation against a complainant"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			out := cmd.OutOrStdout()

			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return presentError(ctx, apperr.Errorf(apperr.KindInvalidInput, "search", "question is empty"))
			}

			r, err := buildRetrieval(log, nil)
			if err != nil {
				return presentError(ctx, err)
			}
			defer r.Close(log)

			records, err := r.retriever.Retrieve(ctx, question, topK)
			if err != nil {
				return presentError(ctx, err)
			}

			rendered := r.formatter.Format(records)
			printRecords(out, records, rendered.LowConfidence)
			if rendered.AllLowConfidence {
				fmt.Fprintln(out, "\nEvery record scored below the confidence threshold.")
			}
			if rendered.Dropped > 0 {
				fmt.Fprintf(out, "\n%d record(s) did not fit the context budget.\n", rendered.Dropped)
			}

			if showPrompt {
				fmt.Fprintln(out)
				fmt.Fprint(out, prompt.NewAssembler("").Assemble(rendered, question).Render())
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of case records to retrieve (default RAG_TOP_K, clamped to RAG_MAX_TOP_K)")
	cmd.Flags().BoolVar(&showPrompt, "show-prompt", false, "Print the assembled prompt")

	return cmd
}
