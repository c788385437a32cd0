package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"rotor-api/internal/config"
	"rotor-api/pkg/broker"
	"rotor-api/pkg/rotation"
	"rotor-api/pkg/warrant"
	"rotor-api/pkg/warrant/screener"
)

// Connectivity check for the screener endpoint: loads the app config, queries
// both directions and prints the best candidate each returns.
//
//	go run scripts/check_screener.go [etc/rotor.yaml]
func main() {
	path := "etc/rotor.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Screener.Value == nil {
		fmt.Fprintln(os.Stderr, "no screener section configured")
		os.Exit(1)
	}

	underlying := "HSI"
	if cfg.Engine.Value != nil {
		underlying = cfg.Engine.Value.MonitorSymbol
	}

	client := screener.NewClientFromConfig(cfg.Screener.Value, underlying)
	rotCfg := cfg.Rotation.Value
	if rotCfg == nil {
		rotCfg = &rotation.Config{}
	}

	for _, probe := range []struct {
		direction broker.Direction
		th        warrant.Thresholds
	}{
		{broker.DirectionLong, rotCfg.Long},
		{broker.DirectionShort, rotCfg.Short},
	} {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		cand, err := client.FindBestCandidate(ctx, probe.direction, probe.th)
		cancel()
		if err != nil {
			fmt.Printf("%-5s ERROR %v\n", probe.direction, err)
			continue
		}
		if cand == nil {
			fmt.Printf("%-5s no candidate\n", probe.direction)
			continue
		}
		fmt.Printf("%-5s %s call=%.0f distance=%.2f%% turnover=%.0f lot=%d\n",
			probe.direction, cand.Symbol, cand.CallPrice, cand.DistancePct, cand.Turnover, cand.LotSize)
	}
}
