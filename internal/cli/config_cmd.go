package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datumcloud/datum-sync/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and initialize the sync configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			path := cfgFile
			if path == "" {
				if path, err = config.DefaultConfigPath(); err != nil {
					path = "(unknown)"
				}
			}

			fmt.Printf("Config file:  %s\n", path)
			fmt.Printf("Entry server: %s:%d\n", cfg.EntryAddr, cfg.EntryPort)
			fmt.Printf("Proxy mode:   %s\n", cfg.Proxy.Mode)
			if cfg.Proxy.Host != "" {
				fmt.Printf("Proxy host:   %s:%d\n", cfg.Proxy.Host, cfg.Proxy.Port)
			}
			fmt.Printf("Heartbeat:    short %ds, long %ds\n", cfg.Sync.HeartbeatShortSeconds, cfg.Sync.HeartbeatLongSeconds)
			fmt.Printf("Page size:    %d\n", cfg.Sync.SectionPageSize)
			fmt.Printf("Search bound: %d\n", cfg.Sync.SearchCapacity)
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var (
		server    string
		port      int
		proxyMode string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if server != "" {
				cfg.EntryAddr = server
			}
			if port > 0 {
				cfg.EntryPort = port
			}
			if proxyMode != "" {
				cfg.Proxy.Mode = proxyMode
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg, cfgFile); err != nil {
				return err
			}
			fmt.Println("Configuration written.")
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Entry server address")
	cmd.Flags().IntVar(&port, "port", 0, "Entry server port")
	cmd.Flags().StringVar(&proxyMode, "proxy-mode", "", "Proxy mode: no-proxy, system, basic or ntlm")

	return cmd
}
