package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"catalogload/internal/cli"
	"catalogload/internal/config"
	"catalogload/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		store, err := storage.NewStore(v.GetString(config.KeyHistoryPath))
		if err != nil {
			return err
		}
		defer store.Close()

		items, err := store.List(limit)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintf(w, "No runs saved in %s. Use --history to record one.\n", store.Path())
			return nil
		}

		fmt.Fprintf(w, "%-36s  %-19s  %-12s  %8s  %8s  %7s  %s\n", "ID", "STARTED", "SCENARIO", "REQS", "P95 MS", "ERR %", "STATUS")
		for _, it := range items {
			p95 := it.Summary.Metrics["http_req_duration"].P95
			fmt.Fprintf(w, "%-36s  %-19s  %-12s  %8d  %8.2f  %7.2f  %s\n",
				it.ID,
				it.Timestamp.Local().Format(time.DateTime),
				it.Summary.Scenario,
				it.Summary.Requests,
				p95,
				it.Summary.ErrorRate*100,
				it.Status(),
			)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the summary of a saved run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewStore(v.GetString(config.KeyHistoryPath))
		if err != nil {
			return err
		}
		defer store.Close()

		item, err := store.Get(args[0])
		if err != nil {
			return err
		}
		cli.PrintSummary(cmd.OutOrStdout(), item.Summary)
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a saved run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewStore(v.GetString(config.KeyHistoryPath))
		if err != nil {
			return err
		}
		defer store.Close()
		return store.Delete(args[0])
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list (0 = all)")
	historyCmd.AddCommand(historyShowCmd, historyDeleteCmd)
}
