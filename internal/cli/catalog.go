package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/maestro-analyzer/internal/domain/layers"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/presets"
)

func newLayersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "List the seven MAESTRO layers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd.OutOrStdout())
			for i, l := range layers.All() {
				fmt.Fprintf(p.w, "%s\n   %s\n", p.paint(p.title, fmt.Sprintf("%d. %s", i+1, l.Name)), l.Description)
			}
			return nil
		},
	}
}

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the bundled example architectures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := presets.All()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VALUE\tLABEL")
			for _, p := range list {
				fmt.Fprintf(tw, "%s\t%s\n", p.Value, p.Label)
			}
			return tw.Flush()
		},
	}
}
