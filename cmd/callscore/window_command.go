package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"callscore-go/internal/schedule"
)

func newWindowCommand(ctx *commandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Show the call window a run would process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			now, err := ctx.now()
			if err != nil {
				return fmt.Errorf("--now: %w", err)
			}
			sel, err := schedule.NewSelector(cfg.Schedule.Timezone, cfg.Schedule.TriggerHours)
			if err != nil {
				return err
			}

			w, ok := sel.Select(now)
			if !ok && force {
				w, ok = sel.Force(now), true
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintf(out, "%s is not a trigger hour (%v)\n", now.In(sel.Location()).Format(time.RFC3339), cfg.Schedule.TriggerHours)
				return nil
			}
			fmt.Fprintf(out, "batch %s: %s .. %s\n", w.BatchKey, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&ctx.nowRaw, "now", "", "Treat this RFC3339 instant as the current time")
	cmd.Flags().BoolVar(&force, "force", false, "Fall back to the latest window outside trigger hours")
	return cmd
}
