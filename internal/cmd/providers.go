package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nulpointcorp/model-resolver/internal/providers"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List providers and their local configuration state",
		Long: `List every supported provider, whether it serves embeddings and whether
its credentials are present. No request is sent upstream.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, res, err := loadResolver(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			reg := res.Registry()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROVIDER\tEMBEDDINGS\tSTATE\tDEFAULT")
			for _, id := range reg.IDs() {
				client, _ := reg.Lookup(id)
				_, embeds := client.(providers.EmbeddingProvider)

				def := ""
				if id.String() == cfg.DefaultProvider {
					def = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, yesNo(embeds), providerState(client), def)
			}
			return tw.Flush()
		},
	}
}

// providerState binds a placeholder model, which surfaces missing credentials
// without network I/O.
func providerState(client providers.Provider) string {
	_, err := client.LanguageModel("probe")
	var cerr *providers.ConstructionError
	switch {
	case err == nil:
		return "configured"
	case errors.As(err, &cerr):
		return "unavailable"
	case errors.Is(err, providers.ErrNotConfigured):
		return "not configured"
	default:
		return "error"
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
