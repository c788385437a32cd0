package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/rest"
	"golang.org/x/sync/errgroup"

	"rotor-api/internal/cli"
	"rotor-api/internal/config"
	"rotor-api/internal/handler"
	"rotor-api/internal/svc"
)

const (
	warmStartTimeout = 30 * time.Second
	shutdownTimeout  = 10 * time.Second
)

var configFile = flag.String("f", "etc/rotor.yaml", "the config file")

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting rotor...")

	appCfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("[main] Failed to load config %s: %v", *configFile, err)
	}

	log.Printf("[main] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(appCfg) {
		log.Printf("  - %s", line)
	}

	// Fall back to the default section files when the main config does not
	// reference them.
	if appCfg.Rotation.Value == nil {
		appCfg.Rotation.Value = config.MustLoadRotation()
		log.Printf("  - Rotation Config Path: etc/rotation.yaml (default)")
	}
	if appCfg.Engine.Value == nil {
		appCfg.Engine.Value = config.MustLoadEngine()
		log.Printf("  - Engine Config Path: etc/engine.yaml (default)")
	}

	svcCtx := svc.NewServiceContext(*appCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if svcCtx.Engine != nil && svcCtx.Repos != nil {
		warmCtx, cancel := context.WithTimeout(ctx, warmStartTimeout)
		if err := svcCtx.Engine.WarmStart(warmCtx, svcCtx.Repos.Executions); err != nil {
			log.Printf("[main] Warning: warm start incomplete: %v", err)
		}
		cancel()
	}

	server := rest.MustNewServer(appCfg.RestConf)
	handler.RegisterHandlers(server, svcCtx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("[main] Status API listening at %s:%d", appCfg.Host, appCfg.Port)
		server.Start()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("[main] Shutdown signal received, stopping...")
		server.Stop()
		return nil
	})

	if svcCtx.Feed != nil {
		g.Go(func() error {
			return svcCtx.Feed.Run(gctx)
		})
	}

	if svcCtx.Engine != nil {
		g.Go(func() error {
			return svcCtx.Engine.Run(gctx)
		})
	} else {
		log.Println("[main] Orchestration sections absent, serving status API only")
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- g.Wait() }()

	var runErr error
	select {
	case runErr = <-waitErr:
	case <-ctx.Done():
		// Give the loops the grace period to drain before forcing exit.
		select {
		case runErr = <-waitErr:
		case <-time.After(shutdownTimeout):
			log.Println("[main] Shutdown timeout exceeded, forcing exit")
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Fatalf("[main] Exited with error: %v", runErr)
	}
	log.Println("[main] Rotor stopped")
}
