package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/datumcloud/datum-sync/internal/events"
	"github.com/datumcloud/datum-sync/internal/logging"
)

func newDaemonCmd() *cobra.Command {
	var (
		email            string
		discoveryMinutes int
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the background sync loop in the foreground",
		Long: `Authenticate silently, then keep the account in sync: recurring
heartbeats, drift-triggered account-info refreshes and periodic cluster
discovery. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Daemon mode logs JSON to stderr so output can be collected.
			logger = logging.NewLogger("daemon")

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := GetContext()
			s, err := app.authenticate(ctx, email)
			if err != nil {
				return err
			}
			if err := app.resolver.Resolve(ctx); err != nil {
				logger.Warn().Err(err).Msg("initial cluster discovery failed")
			}

			all := app.bus.SubscribeAll()
			app.sched.Start(s)
			logger.Info().Str("user", s.Credential().Email).Msg("sync loop started")

			discovery := time.NewTicker(time.Duration(discoveryMinutes) * time.Minute)
			defer discovery.Stop()

			for {
				select {
				case <-ctx.Done():
					logger.Info().Msg("sync loop stopped")
					return nil
				case <-discovery.C:
					if err := app.resolver.Resolve(ctx); err != nil {
						logger.Warn().Err(err).Msg("cluster discovery failed")
					}
				case ev, ok := <-all:
					if !ok {
						return nil
					}
					logEvent(ev)
				}
			}
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Prefer the credential with this email")
	cmd.Flags().IntVar(&discoveryMinutes, "discovery-interval", 30, "Minutes between cluster discovery runs")

	return cmd
}

func logEvent(ev events.Event) {
	switch e := ev.(type) {
	case *events.JobEvent:
		if e.Type() == events.EventJobStopped && e.Err != nil {
			logger.Warn().Str("job", e.Kind).Err(e.Err).Msg("background job failed")
		} else {
			logger.Debug().Str("job", e.Kind).Str("event", string(e.Type())).Msg("background job")
		}
	case *events.SessionChangedEvent:
		logger.Info().Str("user", e.UserKey).Msg("current session changed")
	case *events.HostChangedEvent:
		logger.Info().Str("host", e.HostKey).Str("addr", e.HostAddr).Msg("current host changed")
	case *events.SectionListEvent:
		logger.Debug().Str("container", e.ContainerID).Int("count", e.Count).Msg("listing updated")
	case *events.ActionErrorEvent:
		logger.Warn().Str("action", e.Action).Int("code", e.Code).Err(e.Err).Msg("action failed")
	}
}
