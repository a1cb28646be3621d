package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Apollack123/charge-audit-bot2/internal/api"
	"github.com/Apollack123/charge-audit-bot2/internal/server"
	"github.com/Apollack123/charge-audit-bot2/internal/util"
)

type serveOptions struct {
	port int
	dev  bool
	open bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the upload and audit HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, info, err := loadConfigWithInfo(root)
			if err != nil {
				return err
			}
			// config.toml 显式配置的端口优先
			if cmd.Flags().Changed("port") && !info.PortSpecified {
				cfg.Server.Port = opts.port
			}
			if opts.dev {
				cfg.Server.DevMode = true
			}
			if opts.open {
				cfg.Server.OpenBrowser = true
			}

			a, err := buildApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			handler := api.NewHandler(cfg, a.coordinator, a.assembler, a.aliases, a.logger.With().Str("component", "api").Logger())
			srv := server.NewServer(cfg, handler, a.metrics, a.logger)

			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			url := util.ServerURL(cfg.Server.Port)

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info().Int("port", cfg.Server.Port).Msg("server listening")
				errCh <- srv.Run(addr)
			}()

			if cfg.Server.OpenBrowser && !cfg.Server.DevMode {
				if err := util.OpenBrowser(url); err != nil {
					a.logger.Warn().Err(err).Str("url", url).Msg("cannot open browser")
				}
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-errCh:
				return err
			case <-quit:
			case <-cmd.Context().Done():
			}

			a.logger.Info().Msg("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 0, "listen port (ignored when config.toml sets server.port)")
	cmd.Flags().BoolVar(&opts.dev, "dev", false, "development mode")
	cmd.Flags().BoolVar(&opts.open, "open", false, "open the browser after start")
	return cmd
}
