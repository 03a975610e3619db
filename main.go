package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harrisonrobin/tasklink/pkg/auth"
	"github.com/harrisonrobin/tasklink/pkg/config"
	"github.com/harrisonrobin/tasklink/pkg/logging"
	"github.com/harrisonrobin/tasklink/pkg/store"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tasklink",
		Short:        "Keep a Notion task database and Google Tasks in sync",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/tasklink/config.yaml)")

	root.AddCommand(newRunCmd(), newOnceCmd(), newAuthCmd(), newConfigCmd(), newMappingsCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Sync both ways on the configured interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			watcher, err := config.Watch(a.cfgPath, a.logger)
			if err != nil {
				a.logger.Warn("Config hot reload disabled", zap.Error(err))
			}
			return a.driver(watcher).Run(ctx)
		},
	}
}

func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single sync cycle and print both reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			reports, err := a.driver(nil).RunOnce(ctx)
			for _, r := range reports {
				fmt.Fprintln(cmd.OutOrStdout(), r.String())
			}
			return err
		},
	}
}

func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to Google Tasks again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, flush, err := logging.New(logging.Options{})
			if err != nil {
				return err
			}
			defer flush()

			opts := authOptions(logger)
			tokenFile, err := auth.ResetToken(opts)
			if err != nil {
				return err
			}
			logger.Info("Removed cached token", zap.String("token_file", tokenFile))

			if _, err := auth.GetTasksService(cmd.Context(), opts); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Authentication successful! Token saved to %s\n", tokenFile)
			return nil
		},
	}
}

// authOptions takes the Google file locations from the config when there is
// one, so auth works before the rest of the config is filled in.
func authOptions(logger *zap.Logger) auth.Options {
	opts := auth.Options{Logger: logger}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Debug("No usable config, using default auth files", zap.Error(err))
		return opts
	}
	opts.CredentialsFile = cfg.Google.CredentialsFile
	opts.TokenFile = cfg.Google.TokenFile
	opts.Port = cfg.Google.AuthPort
	return opts
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example config to fill in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.WriteDefault(configPath, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	cmd.AddCommand(initCmd)
	return cmd
}

func newMappingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mappings",
		Short: "List every linked Notion page and Google task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, flush, err := logging.New(logging.Options{Level: "warn"})
			if err != nil {
				return err
			}
			defer flush()

			st, err := store.Open(cmd.Context(), store.Options{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN}, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			mappings, err := st.ScanAll(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NOTION\tGOOGLE\tNOTION SYNCED\tGOOGLE SYNCED")
			for _, m := range mappings {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.NotionID, m.GoogleID, stamp(m.NotionSyncedAt), stamp(m.GoogleSyncedAt))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d mappings\n", len(mappings))
			return nil
		},
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
