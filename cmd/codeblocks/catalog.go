package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"codeblocks/pkg/client"
)

func newCatalogCmd(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the exercises of a server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := client.NewExerciseStore(client.NewAPI(flags.server, "", nil))
			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			if len(entries) == 0 {
				pterm.Warning.Println("No exercises available")
				return nil
			}

			data := pterm.TableData{{"ID", "Title"}}
			for _, e := range entries {
				data = append(data, []string{e.ID, e.Title})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	}
}
