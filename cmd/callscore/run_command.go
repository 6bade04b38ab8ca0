package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"callscore-go/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		force   bool
		noRoles bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the call window of the current trigger hour",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			now, err := ctx.now()
			if err != nil {
				return fmt.Errorf("--now: %w", err)
			}
			for _, w := range cfg.Warnings() {
				ctx.log.Warn(w)
			}

			a, err := buildApp(cfg, ctx.log)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.runner.Run(cmd.Context(), now, pipeline.Options{
				Force:       force,
				AssignRoles: cfg.Pipeline.AssignRoles && !noRoles,
			})
			if asJSON {
				if jerr := writeJSON(cmd, res); jerr != nil {
					return jerr
				}
			} else if !res.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), renderSummary(res))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&ctx.nowRaw, "now", "", "Treat this RFC3339 instant as the current time")
	cmd.Flags().BoolVar(&force, "force", false, "Run the latest window even outside trigger hours")
	cmd.Flags().BoolVar(&noRoles, "no-roles", false, "Skip speaker role labelling")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run result as JSON")
	return cmd
}
