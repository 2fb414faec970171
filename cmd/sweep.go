package cmd

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"renderqueue/config"
	"renderqueue/repository"
	"renderqueue/service"
)

// sweep runs one stale/error reclaim pass and exits. Meant to be
// invoked from cron when the in-server ticker is disabled.
func sweep(cfg *config.Config) *cobra.Command {
	var minutes int
	var resetErrors bool

	c := &cobra.Command{
		Use:   "sweep",
		Short: "reset stuck render jobs once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
			ctx := logger.WithContext(context.Background())

			repo := repository.NewRepo(cfg.DB)
			svc := service.NewService(repo, cfg, nil)

			res, err := svc.Sweep(ctx, time.Duration(minutes)*time.Minute, resetErrors)
			if err != nil {
				return err
			}

			logger.Info().
				Int("reset_count", res.ResetCount).
				Bool("reset_errors", resetErrors).
				Msg("sweep finished")
			return nil
		},
	}

	c.Flags().IntVar(&minutes, "minutes", cfg.Sweep.StuckMinutes, "reclaim running jobs idle longer than this")
	c.Flags().BoolVar(&resetErrors, "reset-errors", false, "also reset errored jobs below the retry bound")
	return c
}
