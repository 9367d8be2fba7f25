package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the enrichment HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEnrich(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		srvAPI := api.New(env.Orchestrator, env.Store, api.Options{
			MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
			MaxNames:       cfg.Server.MaxNames,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Breakers:       env.Breakers,
		})
		defer srvAPI.Close()

		r := chi.NewRouter()
		r.Mount("/", srvAPI.Routes())

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown. Handlers drain before srvAPI.Close runs, so no
		// run can be started once Close is waiting.
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		<-drained

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
