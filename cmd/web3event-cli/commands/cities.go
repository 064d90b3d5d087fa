package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newCitiesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cities",
		Short: "Lists the cities and default tags a scrape accepts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := root.loadCatalog()
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetStyle(table.StyleRounded)
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"City", "Label", "Luma"})
			for _, c := range catalog.Cities {
				luma := c.LumaSlug
				if luma == "" {
					luma = "-"
				}
				t.AppendRow(table.Row{c.ID, c.Label, luma})
			}
			t.Render()

			fmt.Fprintf(cmd.OutOrStdout(), "tags: %s\n", strings.Join(catalog.Tags, ", "))
			return nil
		},
	}
}
