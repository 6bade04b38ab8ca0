package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"callscore-go/internal/journal"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var batch string
	var callID int64
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize journaled outcomes of a batch or one call",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if batch == "" && callID == 0 {
				return fmt.Errorf("either --batch or --call is required")
			}
			j, err := journal.Open(cfg.JournalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			out := cmd.OutOrStdout()
			if callID != 0 {
				events, err := j.CallEvents(cmd.Context(), callID)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(events))
				for _, e := range events {
					rows = append(rows, []string{e.CreatedAt.Format("2006-01-02 15:04:05"), e.BatchKey, e.Stage, e.Verdict, e.Detail})
				}
				fmt.Fprintln(out, renderTable([]string{"Time", "Batch", "Stage", "Verdict", "Detail"}, rows, nil))
				return nil
			}

			counts, err := j.BatchSummary(cmd.Context(), batch)
			if err != nil {
				return err
			}
			if len(counts) == 0 {
				fmt.Fprintf(out, "no events for batch %s\n", batch)
				return nil
			}
			rows := make([][]string, 0, len(counts))
			for _, c := range counts {
				rows = append(rows, []string{c.Stage, c.Verdict, strconv.Itoa(c.Count)})
			}
			fmt.Fprintln(out, renderTable([]string{"Stage", "Verdict", "Events"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().StringVar(&batch, "batch", "", "Batch key (DD.MM.YYYY)")
	cmd.Flags().Int64Var(&callID, "call", 0, "Communication id of a single call")
	return cmd
}
