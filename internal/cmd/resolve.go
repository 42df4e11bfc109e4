package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nulpointcorp/model-resolver/internal/resolver"
)

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a model or task without calling it",
		Long: `Resolve a (model, provider) pair, or a named task, and print the provider
and model the resulting handle is bound to. No request is sent upstream.`,
		Example: `
# Resolve on the default provider
resolver resolve --model gpt-4o

# Resolve an embedding model on Ollama
resolver resolve --model nomic-embed-text --provider ollama --embedding

# Resolve a task default
resolver resolve --task reranker
  `,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			model, _ := cmd.Flags().GetString("model")
			provider, _ := cmd.Flags().GetString("provider")
			task, _ := cmd.Flags().GetString("task")
			embedding, _ := cmd.Flags().GetBool("embedding")

			if task != "" && (model != "" || provider != "" || embedding) {
				return fmt.Errorf("--task cannot be combined with --model, --provider or --embedding")
			}

			_, res, err := loadResolver(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var gotProvider, gotModel string
			switch {
			case task != "":
				t, err := resolver.ParseTask(task)
				if err != nil {
					return err
				}
				m, err := res.TaskModel(t)
				if err != nil {
					return err
				}
				gotProvider, gotModel = m.Provider(), m.Model()
			case embedding:
				m, err := res.ResolveEmbedding(model, provider)
				if err != nil {
					return err
				}
				gotProvider, gotModel = m.Provider(), m.Model()
			default:
				m, err := res.Resolve(model, provider)
				if err != nil {
					return err
				}
				gotProvider, gotModel = m.Provider(), m.Model()
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\n", gotProvider, gotModel)
			return nil
		},
	}

	cmd.Flags().StringP("model", "m", "", "Model name")
	cmd.Flags().StringP("provider", "p", "", "Provider identifier (default provider when empty)")
	cmd.Flags().StringP("task", "t", "", "Task name, e.g. extract or reranker")
	cmd.Flags().Bool("embedding", false, "Resolve an embedding model")
	return cmd
}
