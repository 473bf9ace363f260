package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"prism/internal/engine"
	"prism/internal/obs"
	"prism/internal/ops"
	"prism/internal/persist"
)

func main() {
	if err := run(); err != nil {
		log.Printf("prism: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := flag.String("config", "", "JSON config file path")
	durationFlag := flag.Duration("duration", 0, "stop after this long (0 runs until a shutdown signal)")
	tickFlag := flag.Duration("tick-interval", 0, "override the tick interval")
	metricsFlag := flag.Duration("metrics-interval", 15*time.Second, "metrics log interval")
	pyroscopeFlag := flag.String("pyroscope", "", "pyroscope server address (empty disables profiling)")
	seedFlag := flag.Int64("seed", 0, "override component RNG seeds for a reproducible run")
	flag.Parse()

	loaded := ops.Default()
	if *configFlag != "" {
		var err error
		loaded, err = ops.Load(*configFlag)
		if err != nil {
			return err
		}
	}
	if *tickFlag > 0 {
		loaded.TickInterval = *tickFlag
	}
	if *seedFlag != 0 {
		loaded.Price.Seed = *seedFlag
		loaded.Execution.Seed = *seedFlag
		loaded.Agents.Seed = *seedFlag
	}

	if addr := *pyroscopeFlag; addr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "prism",
			ServerAddress:   addr,
			Tags: map[string]string{
				"env": "local",
			},
			Logger: emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	store := persist.Store(persist.NopStore{})
	if loaded.Persist.Enabled {
		pg, err := persist.NewPostgresStore(loaded.Persist)
		if err != nil {
			return err
		}
		store = pg
	}
	defer func() {
		if err := store.Close(); err != nil {
			logs.Warnf("close store failed, err: %+v", err)
		}
	}()

	eng, err := engine.New(engine.Config{
		TickInterval:  loaded.TickInterval,
		FlushInterval: loaded.FlushInterval,
		Liquidity:     loaded.Liquidity,
		Price:         loaded.Price,
		Execution:     loaded.Execution,
		Agents:        loaded.Agents,
		Analytics:     loaded.Analytics,
	}, store, obs.NewMetrics())
	if err != nil {
		return err
	}
	for _, sym := range loaded.Symbols {
		if err := eng.AddSymbol(sym.Name, sym.InitialPrice); err != nil {
			return err
		}
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if *durationFlag > 0 {
		ctx, cancel = context.WithTimeout(ctx, *durationFlag)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx)
	}()

	interval := *metricsFlag
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sys.Shutdown():
			logs.Info("shutdown signal received")
			cancel()
			return <-done
		case err := <-done:
			return err
		case <-ticker.C:
			logStats(eng)
		}
	}
}

func logStats(eng *engine.Engine) {
	s := eng.Stats()
	logs.Infof("ticks: %d, orders: %d (open %d, filled %d, partial %d, rejected %d, cancelled %d), fills: %d, agent faults: %d, persist drops: %d, persist failures: %d, order latency avg: %s, tick latency avg: %s",
		s.Ticks,
		s.OrdersSubmitted, s.OrdersOpen, s.OrdersFilled, s.OrdersPartial, s.OrdersRejected, s.OrdersCancelled,
		s.Fills, s.AgentFaults, s.PersistDrops, s.PersistFailures,
		s.OrderLatency.Avg, s.TickLatency.Avg,
	)
}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}
