package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newDefaultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Print the task defaults table",
		Long: `Print the model and provider configured for every task, and the model
actually requested once MODEL_NAME is applied.`,
		Example: `
# Human-readable table
resolver defaults

# JSON for scripts
resolver defaults --json
  `,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			_, res, err := loadResolver(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			rows := res.Defaults()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"default_provider": res.DefaultProvider(),
					"tasks":            rows,
				})
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "default provider:\t%s\n\n", res.DefaultProvider())
			fmt.Fprintln(tw, "TASK\tPROVIDER\tMODEL\tEFFECTIVE MODEL")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Task, r.Provider, r.Model, r.EffectiveModel)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "Print as JSON")
	return cmd
}
