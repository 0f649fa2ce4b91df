package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PixelOverkilll/last-man-standing-sub000/internal/config"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/httpapi"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/hub"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/registry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New()
	h := hub.NewHub(ctx, logger, func(code string, memberIDs []string) {
		reg.DetachAll(memberIDs)
	})

	// Build the router *with* the hub and registry injected
	handler := httpapi.SetupRoutes(h, reg, cfg, logger)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// All lobbies close on the way down; a restart is equivalent to
		// every lobby closing.
		h.Inbox() <- hub.ShutdownHub{}
		sdCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sdCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
