package main

import (
	"time"

	"github.com/spf13/cobra"

	"callscore-go/internal/config"
	"callscore-go/internal/logger"
)

// commandContext loads configuration once per invocation. The logger is
// built after .env is loaded so LOG_LEVEL and ENVIRONMENT from it apply.
type commandContext struct {
	cfg    *config.Config
	log    *logger.Logger
	nowRaw string
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	if c.cfg != nil {
		return *c.cfg, nil
	}
	config.LoadDotenv()
	if c.log == nil {
		c.log = logger.New().Component("cli")
	}
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	c.cfg = &cfg
	return cfg, nil
}

// now parses --now, defaulting to the current time.
func (c *commandContext) now() (time.Time, error) {
	if c.nowRaw == "" {
		return time.Now(), nil
	}
	return time.Parse(time.RFC3339, c.nowRaw)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "callscore",
		Short:         "Scores sales calls and reports them to the sales team",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newWindowCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	return rootCmd
}
