package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/irdrive/internal/config"
	"github.com/tonimelisma/irdrive/internal/sessionstore"
	"github.com/tonimelisma/irdrive/internal/web"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web sign-in flow and incident API",
		Long: `Serve the browser sign-in flow and the incident report API. Sessions are
kept in the configured store. Edits to the config file are picked up without a
restart, except for [auth] and the listen address.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "listen address (overrides server.listen)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)
	logger := cc.Logger

	store, err := sessionstore.Open(ctx, sessionstore.Options{
		Backend:    cc.Cfg.Session.Backend,
		SQLitePath: cc.Cfg.Session.SQLitePath,
		RedisURL:   cc.Cfg.Session.RedisURL,
	}, logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing session store", slog.String("error", err.Error()))
		}
	}()

	manager, err := newManager(cc, store)
	if err != nil {
		return err
	}

	holder := config.NewHolder(cc.Cfg, cc.CfgPath)

	server, err := web.NewServer(manager, newSessionProvider(cc.Cfg, logger), holder, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.ListenAndServe(gctx, cc.Cfg.Server.Listen)
	})

	g.Go(func() error {
		manager.RunReaper(gctx, cc.Cfg.Session.ReapInterval)
		return nil
	})

	if _, err := os.Stat(cc.CfgPath); err == nil {
		watcher := config.NewWatcher(holder, cc.Env, cc.CLI, logger, func(old, updated *config.Config) {
			if old.Server.Listen != updated.Server.Listen {
				logger.Warn("listen address changed; restart to apply it",
					slog.String("listen", old.Server.Listen),
				)
			}
		})

		g.Go(func() error {
			return watcher.Run(gctx)
		})
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return g.Wait()
}
