package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"gitlab.com/freelanced/escrowd/internal/config"
	"gitlab.com/freelanced/escrowd/internal/escrow"
	"gitlab.com/freelanced/escrowd/internal/eventbus"
	"gitlab.com/freelanced/escrowd/internal/handlers/httphandlers"
	"gitlab.com/freelanced/escrowd/internal/lib"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load(".env")

	var cfg config.Config
	err := config.LoadConfig(&cfg, &os.Args)
	if err != nil {
		panic(err)
	}

	logFile := ""
	if cfg.Log.FolderPath != "" {
		logFile = filepath.Join(cfg.Log.FolderPath, "escrowd.log")
	}

	log, err := lib.NewLogger(cfg.Log.LevelApp, cfg.Log.Color, cfg.Log.IsProd, cfg.Log.JSON, logFile)
	if err != nil {
		panic(err)
	}

	busLog, err := lib.NewLogger(cfg.Log.LevelBus, cfg.Log.Color, cfg.Log.IsProd, cfg.Log.JSON, logFile)
	if err != nil {
		panic(err)
	}

	escrowLog, err := lib.NewLogger(cfg.Log.LevelEscrow, cfg.Log.Color, cfg.Log.IsProd, cfg.Log.JSON, logFile)
	if err != nil {
		panic(err)
	}

	httpLog, err := lib.NewLogger(cfg.Log.LevelHTTP, cfg.Log.Color, cfg.Log.IsProd, cfg.Log.JSON, logFile)
	if err != nil {
		panic(err)
	}

	defer func() {
		_ = log.Sync()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-shutdownChan
		log.Warnf("Received signal: %s", s)
		cancel()

		s = <-shutdownChan
		log.Warnf("Received signal: %s. Forcing exit...", s)
		os.Exit(1)
	}()

	publicUrl, err := url.Parse(cfg.Web.PublicUrl)
	if err != nil {
		panic(err)
	}

	bus := eventbus.NewEventBus(busLog.Named("BUS"))
	defer bus.Close()

	fees := escrow.NewFeePolicy()
	vault := escrow.NewVault(escrowLog.Named("VAULT"))
	registry := escrow.NewProjectRegistry(escrowLog.Named("REGISTRY"))
	ledger := escrow.NewMilestoneLedger(vault, fees, escrowLog.Named("LEDGER"))
	service := escrow.NewService(registry, ledger, vault, fees, bus, cfg.Escrow.LockTimeout, escrowLog.Named("SERVICE"))

	handl := httphandlers.NewHTTPHandler(service, &cfg, publicUrl, httpLog)

	server := &http.Server{
		Addr:    cfg.Web.Address,
		Handler: handl,
	}

	g, errCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("http server is listening: %s, public url: %s", cfg.Web.Address, publicUrl.String())
		return server.ListenAndServe()
	})

	g.Go(func() error {
		<-errCtx.Done()
		return server.Close()
	})

	// audit trail of every lifecycle notification
	sub := bus.Subscribe()
	g.Go(func() error {
		for {
			event, ok := sub.Next(errCtx)
			if !ok {
				return nil
			}
			log.Infof("%s %s: %+v", event.EventName(), escrow.Topic(event.EventName()), event)
		}
	})

	err = g.Wait()
	log.Infof("App exited due to %s", err)
}
