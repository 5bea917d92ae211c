package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fmonfasani/mini-lab-ott/engine/config"
	"github.com/fmonfasani/mini-lab-ott/engine/lifecycle"
	"github.com/fmonfasani/mini-lab-ott/engine/simulator"
	"github.com/fmonfasani/mini-lab-ott/engine/storage"
	"github.com/fmonfasani/mini-lab-ott/engine/types"
)

// seed populates the store with synthetic sessions so the KPI dashboard has
// data to aggregate on a fresh install.
func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	perKind := flag.Int("n", 25, "Number of sessions to run per test kind")
	seed := flag.Int64("seed", time.Now().UnixNano(), "RNG seed")
	faultPct := flag.Float64("fault-pct", 10, "Chaos error rate percentage")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	store := storage.NewPostgres(&cfg.PostgreSQL)
	if err := store.Connect(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}
	defer store.Close()

	if err := storage.RunMigrations(store.DB()); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	manager := lifecycle.NewManager(store, logger)
	recorder := lifecycle.NewRecorder(store, logger)
	rng := rand.New(rand.NewSource(*seed))
	ctx := context.Background()

	total, failed := 0, 0
	for _, kind := range types.Kinds {
		for i := 0; i < *perKind; i++ {
			req := types.TestRequest{
				TargetURL:  "https://streams.example.com/live/channel1/manifest.mpd",
				DRMEnabled: kind == types.KindDRM,
				Chaos: types.ChaosConfig{
					ErrorRatePct:    *faultPct,
					EnableFaultMode: rng.Float64() < 0.3,
				},
			}
			if err := runOne(ctx, logger, manager, recorder, store, kind, req, rng); err != nil {
				logger.WithError(err).WithField("kind", kind).Error("Seed session failed to persist")
				failed++
			}
			total++
		}
	}

	fmt.Printf("Seeded %d sessions (%d persist failures)\n", total, failed)
}

func runOne(
	ctx context.Context,
	log logrus.FieldLogger,
	manager *lifecycle.Manager,
	recorder *lifecycle.Recorder,
	store storage.Store,
	kind types.TestKind,
	req types.TestRequest,
	rng *rand.Rand,
) error {
	params, err := json.Marshal(req)
	if err != nil {
		return err
	}

	run, err := manager.Open(ctx, kind, params)
	if err != nil {
		return err
	}

	// Sessions run with simulated time so seeding a month of data is fast.
	sim := simulator.New(kind,
		simulator.WithRand(rng),
		simulator.WithSleep(func(time.Duration) {}),
	)
	result := sim.Run(ctx, req)

	if err := recorder.RecordBundle(ctx, run.ID(), result.Metrics); err != nil {
		closeAbandoned(ctx, log, run)
		return err
	}

	runID := run.ID()
	if result.OK {
		err = store.WriteLog(ctx, &runID, types.LevelInfo,
			fmt.Sprintf("%s session completed", kind), map[string]interface{}{"duration_ms": result.DurationMS})
	} else {
		err = store.WriteLog(ctx, &runID, types.LevelError, result.Error, nil)
	}
	if err != nil {
		closeAbandoned(ctx, log, run)
		return err
	}

	return run.Close(ctx, result.OK, result.DurationMS)
}

func closeAbandoned(ctx context.Context, log logrus.FieldLogger, run *lifecycle.Run) {
	if err := run.Close(ctx, false, 0); err != nil {
		log.WithError(err).WithField("run_id", run.ID()).Error("Failed to close abandoned run")
	}
}
