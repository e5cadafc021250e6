package main

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/med-material/HandStrengthener/internal/events"
	"github.com/med-material/HandStrengthener/internal/input"
	"github.com/med-material/HandStrengthener/internal/logging"
	"github.com/med-material/HandStrengthener/internal/session"
	"github.com/med-material/HandStrengthener/internal/state"
	"github.com/med-material/HandStrengthener/internal/transport"
	"github.com/med-material/HandStrengthener/internal/trial"
)

var (
	runConfidences string
	runGaze        string
	runEventsPath  string
	runWait        bool
	runNoGRPC      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one trial session in real time",
	Long: "Starts a session loop at session.tick_hz, serves SessionControl over gRPC " +
		"and persists decisions to the SQLite store. With --confidences a simulated " +
		"classifier replays a recorded confidence stream as input; with --gaze a blink " +
		"detector replays per-tick gaze samples instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runSession(ctx)
	},
}

func runSession(ctx context.Context) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	sc, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	log := zap.L()

	store, err := state.NewStore(cfg.Store.Path)
	if err != nil {
		return eris.Wrap(err, "open store")
	}
	defer store.Close()

	bus := events.NewBus(log)
	var srv *transport.Server
	sink := events.Multi{
		bus,
		logging.NewEventLogger(log),
		events.SinkFunc(func(ev events.Event) {
			if srv != nil {
				srv.Publish(ev)
			}
		}),
	}

	ctrl, err := session.New(sc, sink, log)
	if err != nil {
		return err
	}
	cats, err := json.Marshal(sc.Categories)
	if err != nil {
		return eris.Wrap(err, "marshal categories")
	}
	if _, err := store.CreateSession(state.SessionRecord{
		ID:          ctrl.ID(),
		Mode:        string(sc.Mode),
		TotalTrials: sc.TotalTrials,
		Seed:        ctrl.Seed(),
		Categories:  string(cats),
	}); err != nil {
		return err
	}

	loop := session.NewLoop(ctrl, cfg.Session.TickHz, log)
	srv = transport.NewServer(loop, bus, log)
	srv.LimitInputs(cfg.GRPC.InputRate, cfg.GRPC.InputBurst)

	recorder := state.NewRecorder(store, ctrl.ID(), log)
	recCh, _ := bus.Subscribe(1024)
	prov := logging.NewProvenance(store.DB(), ctrl.ID(), log)
	provCh, _ := bus.Subscribe(1024)

	var (
		jsonl   *events.JSONLWriter
		jsonlCh <-chan events.Event
	)
	if runEventsPath != "" {
		f, err := os.Create(runEventsPath)
		if err != nil {
			return eris.Wrapf(err, "create %s", runEventsPath)
		}
		defer f.Close()
		jsonl = events.NewJSONLWriter(f, log)
		jsonlCh, _ = bus.Subscribe(1024)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	abort := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	g.Go(func() error {
		defer cancel()
		defer bus.Close()
		return loop.Run(gctx)
	})
	g.Go(func() error {
		recorder.Drain(recCh)
		return nil
	})
	g.Go(func() error {
		for ev := range provCh {
			prov.Publish(ev)
		}
		return nil
	})

	if jsonl != nil {
		g.Go(func() error {
			for ev := range jsonlCh {
				jsonl.Publish(ev)
			}
			return nil
		})
	}

	if !runNoGRPC && cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return abort(eris.Wrapf(err, "listen %s", cfg.GRPC.Addr))
		}
		gs := grpc.NewServer()
		srv.Register(gs)
		g.Go(func() error {
			<-gctx.Done()
			srv.Shutdown()
			gs.GracefulStop()
			return nil
		})
		g.Go(func() error {
			log.Info("session control listening", zap.String("addr", lis.Addr().String()))
			return gs.Serve(lis)
		})
	}

	switch {
	case runConfidences != "":
		samples, err := loadConfidences(runConfidences)
		if err != nil {
			return abort(err)
		}
		cc, err := cfg.ClassifierConfig()
		if err != nil {
			return abort(err)
		}
		next := classifierProducer(samples, cc, log)
		g.Go(func() error {
			return simulateInput(gctx, loop, next, cfg.Session.TickHz, log)
		})
	case runGaze != "":
		samples, err := loadConfidences(runGaze)
		if err != nil {
			return abort(err)
		}
		next := gazeProducer(samples, cfg.Session.TickHz, log)
		g.Go(func() error {
			return simulateInput(gctx, loop, next, cfg.Session.TickHz, log)
		})
	}

	log.Info("session ready",
		zap.String("session", ctrl.ID()),
		zap.Uint64("seed", ctrl.Seed()),
		zap.String("mode", string(sc.Mode)),
		zap.Int("total_trials", sc.TotalTrials),
	)
	if !runWait {
		if err := loop.Command(gctx, session.CmdRun); err != nil {
			log.Error("start session", zap.Error(err))
			cancel()
		}
	}

	err = g.Wait()
	if n := bus.Dropped(); n > 0 {
		log.Warn("events dropped by slow subscribers", zap.Int("dropped", n))
	}
	if n := recorder.Errors(); n > 0 {
		log.Warn("events not persisted", zap.Int("failed", n))
	}
	if err != nil && !eris.Is(err, context.Canceled) {
		return err
	}
	log.Info("session closed", zap.String("session", ctrl.ID()), zap.Bool("finished", ctrl.Finished()))
	return nil
}

// #region simulated-input
func loadConfidences(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	samples, err := input.ReadConfidences(f)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	if len(samples) == 0 {
		return nil, eris.Errorf("%s has no samples", path)
	}
	return samples, nil
}

// producer turns dt seconds of recorded signal into input events.
type producer func(dt float64) []trial.InputEvent

// classifierProducer replays a confidence stream through the classifier and
// yields each classification change.
func classifierProducer(samples []float64, cc input.ClassifierConfig, log *zap.Logger) producer {
	cls := input.NewClassifier(cc, log)
	stream := input.NewStream(samples, 0, 0)
	return func(dt float64) []trial.InputEvent {
		var out []trial.InputEvent
		for _, raw := range stream.Advance(dt) {
			if ev, ok := cls.Feed(raw); ok {
				out = append(out, ev)
			}
		}
		return out
	}
}

// gazeProducer replays one gaze sample per tick; values above 0.5 mean gaze
// was seen recently. Each reopening of the eyes yields a blink input.
func gazeProducer(samples []float64, tickHz float64, log *zap.Logger) producer {
	period := 1 / tickHz
	det := input.NewBlinkDetector(log)
	det.Start()
	stream := input.NewStream(samples, 0, period)
	return func(dt float64) []trial.InputEvent {
		var out []trial.InputEvent
		for _, v := range stream.Advance(dt) {
			if ev, ok := det.Update(period, v > 0.5); ok {
				out = append(out, ev)
			}
		}
		return out
	}
}

// simulateInput drives next at tickHz with measured elapsed time and submits
// what it produces to the loop.
func simulateInput(ctx context.Context, loop *session.Loop, next producer, tickHz float64, log *zap.Logger) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / tickHz))
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-loop.Done():
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			for _, ev := range next(dt) {
				if err := loop.Input(ctx, ev); err != nil {
					if eris.Is(err, session.ErrLoopClosed) || eris.Is(err, context.Canceled) {
						return nil
					}
					log.Warn("simulated input refused",
						zap.String("source", string(ev.Source)),
						zap.Int64("sequence", ev.Sequence),
						zap.Error(err),
					)
				}
			}
		}
	}
}

// #endregion simulated-input

func init() {
	runCmd.Flags().StringVar(&runConfidences, "confidences", "", "newline separated confidence file to simulate classifier input")
	runCmd.Flags().StringVar(&runGaze, "gaze", "", "newline separated per-tick gaze samples (1 seen, 0 lost) to simulate blink input")
	runCmd.MarkFlagsMutuallyExclusive("confidences", "gaze")
	runCmd.Flags().StringVar(&runEventsPath, "events", "", "write every event as a JSON line to this file")
	runCmd.Flags().BoolVar(&runWait, "wait", false, "wait for a run command over gRPC instead of starting immediately")
	runCmd.Flags().BoolVar(&runNoGRPC, "no-grpc", false, "do not serve SessionControl")
	rootCmd.AddCommand(runCmd)
}
