package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jakechorley/fairshare/pkg/api"
	"github.com/jakechorley/fairshare/pkg/core/services"
)

const shutdownTimeout = 10 * time.Second

// ServeCmd creates the serve command
func ServeCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the allocation API and run the daily reset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = app.Cfg.Server.Addr
			}
			if addr == "" {
				addr = ":8080"
			}

			clock, err := app.Cfg.ResetClock()
			if err != nil {
				return err
			}
			resetSchedule, err := services.NewResetSchedule(clock, app.Location)
			if err != nil {
				return err
			}

			handler := api.NewHandler(app.Engine, app.Logger)
			server := &http.Server{
				Addr:              addr,
				Handler:           api.NewRouter(handler, app.Cfg.Server.AllowedOrigins),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(app.Ctx)

			g.Go(func() error {
				app.Logger.Info("Starting server", zap.String("addr", addr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				return app.Engine.RunDailyReset(ctx, resetSchedule)
			})

			g.Go(func() error {
				<-ctx.Done()
				app.Logger.Info("Shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().String("addr", "", "Listen address (defaults to server.addr, then :8080)")

	return cmd
}
