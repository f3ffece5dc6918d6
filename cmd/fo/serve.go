package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldops/internal/app"
	"fieldops/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := app.OpenWorkspace(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer ws.Close()
			logger := newLogger(os.Stderr, true)
			e := ws.Engine(logger)

			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("FIELDOPS_JWT_SECRET is required for bearer auth")
			}
			if !cmd.Flags().Changed("addr") && ws.Config.Server.Addr != "" {
				addr = ws.Config.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && ws.Config.Server.BasePath != "" {
				basePath = ws.Config.Server.BasePath
			}
			handler, err := server.New(server.Config{
				Engine:      e,
				BasePath:    basePath,
				Auth:        server.AuthConfig{JWTSecret: secret, Logger: logger},
				CORSOrigins: ws.Config.Server.CORSOrigins,
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			server.StartBackground(ctx, e, logger)

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving fieldops api", "addr", addr, "base_path", basePath, "docs", "/docs")
			fmt.Printf("Serving Fieldops API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (default from fieldops.yml)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path (default from fieldops.yml)")
	return cmd
}
