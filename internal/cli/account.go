package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/datumcloud/datum-sync/internal/auth"
	"github.com/datumcloud/datum-sync/internal/config"
	"github.com/datumcloud/datum-sync/internal/events"
	"github.com/datumcloud/datum-sync/internal/models"
	"github.com/datumcloud/datum-sync/internal/scheduler"
)

func newLoginCmd() *cobra.Command {
	var (
		username string
		email    string
		register bool
		server   string
		port     int
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to a Datum Cloud account",
		Long: `Sign in with username and password. With --register a new account is
created first; --register requires --email. The resulting credential is
stored locally and reused for silent re-authentication.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppWith(func(cfg *config.Config) {
				if server != "" {
					cfg.EntryAddr = server
				}
				if port > 0 {
					cfg.EntryPort = port
				}
			})
			if err != nil {
				return err
			}
			defer app.Close()

			if app.cfg.EntryAddr == "" {
				return fmt.Errorf("no server address configured; pass --server or run 'datum-sync config init'")
			}

			if username == "" {
				username, err = promptLine("Username: ")
				if err != nil {
					return err
				}
			}
			password, err := promptPassword("Password: ")
			if err != nil {
				return err
			}

			state, err := app.auth.Login(GetContext(), username, password, email, register)
			if err != nil {
				return err
			}
			s := app.sessions.Current()
			if s == nil {
				return fmt.Errorf("login finished in state %s without a session", state)
			}

			cred := s.Credential()
			host := s.Host()
			fmt.Printf("Signed in as %s on %s (%s)\n", cred.Email, host.HostName, host.HostAddr)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Account username (prompted when omitted)")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email (required with --register)")
	cmd.Flags().BoolVar(&register, "register", false, "Create the account before signing in")
	cmd.Flags().StringVar(&server, "server", "", "Entry server address (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Entry server port (overrides config)")

	return cmd
}

func newAuthCmd() *cobra.Command {
	var (
		email string
		check bool
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Silently re-authenticate with a stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if check {
				state, err := app.auth.Authenticate(GetContext(), email, true)
				if err != nil {
					return err
				}
				fmt.Printf("Account state: %s\n", state)
				return nil
			}

			s, err := app.authenticate(GetContext(), email)
			if err != nil {
				return err
			}
			cred := s.Credential()
			host := s.Host()
			fmt.Printf("Authenticated as %s on %s (%s)\n", cred.Email, host.HostName, host.HostAddr)

			// Refresh the host topology while we are here.
			if err := app.resolver.Resolve(GetContext()); err != nil {
				GetLogger().Warn().Err(err).Msg("cluster discovery failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Prefer the credential with this email")
	cmd.Flags().BoolVar(&check, "check", false, "Only report whether stored accounts exist (offline)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out and invalidate the stored credential's token",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			s, err := app.authenticate(GetContext(), email)
			if err != nil {
				return err
			}

			stopped := app.bus.Subscribe(events.EventJobStopped)
			app.sched.Logout(s)

			deadline := time.After(30 * time.Second)
			for {
				select {
				case ev := <-stopped:
					je, ok := ev.(*events.JobEvent)
					if !ok || je.Kind != string(scheduler.KindLogout) {
						continue
					}
					if je.Err != nil {
						return je.Err
					}
					fmt.Printf("Signed out %s\n", s.Credential().Email)
					return nil
				case <-deadline:
					return fmt.Errorf("logout timed out")
				case <-GetContext().Done():
					return GetContext().Err()
				}
			}
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Prefer the credential with this email")

	return cmd
}

func newStatusCmd() *cobra.Command {
	var (
		email  string
		online bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored accounts and hosts; --online adds the live account view",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			creds, err := app.store.Credentials()
			if err != nil {
				return err
			}
			if len(creds) == 0 {
				fmt.Println("No stored accounts.")
			} else {
				fmt.Println("Accounts:")
				for _, c := range creds {
					line := fmt.Sprintf("  %-30s %-8s cluster=%s", c.Email, c.Status, c.ClusterID)
					if c.Status == models.CredentialStatusError {
						line += fmt.Sprintf(" (code=%d %s)", c.FailedCode, c.FailedMessage)
					}
					fmt.Println(line)
				}
			}

			hosts, err := app.store.Hosts()
			if err != nil {
				return err
			}
			if len(hosts) > 0 {
				fmt.Println("Hosts:")
				for _, h := range hosts {
					fmt.Printf("  %-20s %s:%d status=%s\n", h.HostName, h.HostAddr, h.HTTPPort, h.Status)
				}
			}

			if state := app.auth.State(); state != auth.StateNoAccount {
				fmt.Printf("Auth state: %s\n", state)
			}
			if !online {
				return nil
			}

			s, err := app.authenticate(GetContext(), email)
			if err != nil {
				return err
			}
			if err := s.RefreshDashboard(GetContext(), app.client); err != nil {
				return err
			}
			if err := s.RefreshStorageNodes(GetContext(), app.client); err != nil {
				return err
			}

			if d := s.Dashboard(); d != nil && len(d.Items) > 0 {
				fmt.Println("Dashboard:")
				for _, it := range d.Items {
					fmt.Printf("  %-10s %-24s %s\n", it.Kind, it.ID, it.Name)
				}
			}
			nodes := s.StorageNodes()
			if len(nodes) == 0 {
				fmt.Println("No storage nodes.")
				return nil
			}
			fmt.Println("Storage nodes:")
			for _, n := range nodes {
				fmt.Printf("  %-20s %-8s free %d of %d\n", n.Name, n.Status, n.FreeBytes, n.TotalBytes)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Prefer the credential with this email")
	cmd.Flags().BoolVar(&online, "online", false, "Authenticate and show the live dashboard and storage nodes")

	return cmd
}
