package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sameehj/gatekeeper/internal/app"
	"github.com/sameehj/gatekeeper/pkg/acl"
	"github.com/sameehj/gatekeeper/pkg/adapter"
	"github.com/sameehj/gatekeeper/pkg/config"
	"github.com/sameehj/gatekeeper/pkg/logging"
	"github.com/sameehj/gatekeeper/pkg/store"
	"github.com/sameehj/gatekeeper/pkg/version"
	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := config.LoadDotEnv("."); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gatekeeper",
		Short:        "Chat moderation gatekeeper",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.gatekeeper/config.yaml)")

	root.AddCommand(runCmd())
	root.AddCommand(consoleCmd())
	root.AddCommand(operatorsCmd())
	root.AddCommand(channelsCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(config.ResolvePath(cfgFile))
}

func runCmd() *cobra.Command {
	var platform string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the chat platform and enforce channel policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if platform != "" {
				cfg.Platform = platform
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			logger := logging.New(cfg.LogLevel, cfg.LogFormat)
			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ad, err := a.Adapter()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			errCh := make(chan error, 1)
			go func() { errCh <- a.Run(ctx, ad) }()

			select {
			case <-waitForSignal():
				cancel()
				return <-errCh
			case err := <-errCh:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "chat platform (discord or relay)")
	return cmd
}

func consoleCmd() *cobra.Command {
	var author, channel string

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Try commands and policies from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if author == "" {
				author = cfg.MasterID
			}
			logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, "text")
			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ad := adapter.NewConsoleAdapter(cmd.InOrStdin(), cmd.OutOrStdout(), a.Router, author, channel)
			return a.Run(cmd.Context(), ad)
		},
	}

	cmd.Flags().StringVar(&author, "as", "", "author id for typed messages (default: the master)")
	cmd.Flags().StringVar(&channel, "channel", "console", "channel id for typed messages")
	return cmd
}

// openRegistry loads the registry without connecting anywhere.
func openRegistry() (*acl.Registry, store.Backend, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	backend, err := store.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, nil, nil, err
	}
	registry, err := acl.Open(backend, cfg.MasterID)
	if err != nil {
		_ = backend.Close()
		return nil, nil, nil, err
	}
	return registry, backend, cfg, nil
}

func operatorsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "operators", Short: "Operator allowlist"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the master and operators",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, backend, _, err := openRegistry()
			if err != nil {
				return err
			}
			defer backend.Close()
			printOperators(cmd.OutOrStdout(), registry)
			return nil
		},
	})
	return cmd
}

func printOperators(w io.Writer, registry *acl.Registry) {
	fmt.Fprintf(w, "master\t%s\n", registry.Master())
	for _, id := range registry.ListOperators() {
		fmt.Fprintf(w, "operator\t%s\n", id)
	}
}

func channelsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "channels", Short: "Channel policies"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List channel policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, backend, _, err := openRegistry()
			if err != nil {
				return err
			}
			defer backend.Close()
			printChannels(cmd.OutOrStdout(), registry)
			return nil
		},
	})
	return cmd
}

func printChannels(w io.Writer, registry *acl.Registry) {
	channels := registry.Channels()
	if len(channels) == 0 {
		fmt.Fprintln(w, "No channels configured.")
		return
	}
	for _, entry := range channels {
		fmt.Fprintf(w, "%s\t%s\t%s\n", entry.ID, entry.Policy.Mode, strings.Join(entry.Policy.WhitelistedParticipants, ","))
	}
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Show configuration and stored state",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, backend, cfg, err := openRegistry()
			if err != nil {
				return err
			}
			defer backend.Close()
			token := "missing"
			if cfg.Token != "" {
				token = "set"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version: %s\nPlatform: %s\nBot token: %s\nStorage: %s (%s)\nCommand prefix: %s\n",
				version.String(), cfg.Platform, token, cfg.Storage.Driver, cfg.Storage.Path, cfg.CommandPrefix)
			fmt.Fprintf(out, "Master: %s\nOperators: %d\nChannels: %d\n",
				registry.Master(), len(registry.ListOperators()), len(registry.Channels()))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func waitForSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}
