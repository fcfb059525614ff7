package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"catalogload/internal/scenario"
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List built-in scenarios",
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		for _, name := range scenario.Names() {
			sc, _ := scenario.Lookup(name)
			q := ""
			if len(sc.Query) > 0 {
				q = "?" + sc.Query.Encode()
			}
			fmt.Fprintf(w, "%-14s GET %s%s\n", sc.Name, sc.Path, q)
			fmt.Fprintf(w, "%-14s %s, trend %s, %d checks\n", "", sc.Title, sc.TrendMetric, len(sc.Checks))
		}
	},
}
