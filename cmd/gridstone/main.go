// Command gridstone runs contraption tests against a live voxel world, or
// drops into an interactive authoring session for recording new ones.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gridstone.dev/internal/config"
	"gridstone.dev/internal/engine"
	"gridstone.dev/internal/index"
	"gridstone.dev/internal/loader"
	"gridstone.dev/internal/pack"
	"gridstone.dev/internal/recorder"
	"gridstone.dev/internal/report"
	"gridstone.dev/internal/result"
	"gridstone.dev/internal/runlog"
	"gridstone.dev/internal/spec"
	"gridstone.dev/internal/worldclient"
)

func main() {
	var (
		configPath      = flag.String("config", "", "path to gridstone.yaml (optional)")
		server          = flag.String("server", "", "world websocket URL (overrides config)")
		recursive       = flag.Bool("recursive", false, "recursively search directories for test files")
		tags            = flag.String("tags", "", "comma-separated tag filter")
		failFast        = flag.Bool("fail-fast", false, "stop scheduling chunks after the first failure")
		breakAfterSetup = flag.Bool("break-after-setup", false, "pause after areas are cleared and time is frozen")
		actionDelay     = flag.Duration("action-delay", 0, "delay between world writes, for watching live")
		reportFormat    = flag.String("report", "", "report format: summary, json, tap, junit")
		reportOut       = flag.String("report-out", "", "write the report to a file instead of stdout")
		dataDir         = flag.String("data-dir", "", "directory for the test index and run logs")
		noIndex         = flag.Bool("no-index", false, "do not touch the test index database")
		noRunLog        = flag.Bool("no-runlog", false, "do not write a run log")
		interactive     = flag.Bool("interactive", false, "start an authoring session instead of a run")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[gridstone] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if *server != "" {
		cfg.Server = *server
	}
	if *recursive {
		cfg.Tests.Recursive = true
	}
	if *tags != "" {
		cfg.Tests.Tags = splitTags(*tags)
	}
	if *failFast {
		cfg.Run.FailFast = true
	}
	if *breakAfterSetup {
		cfg.Run.BreakAfterSetup = true
	}
	if *actionDelay > 0 {
		cfg.Run.ActionDelayMs = int(actionDelay.Milliseconds())
	}
	if *reportFormat != "" {
		cfg.Run.Report = *reportFormat
	}
	if *reportOut != "" {
		cfg.Run.ReportPath = *reportOut
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *noIndex {
		cfg.Index.Disable = true
	}
	if *noRunLog {
		cfg.Run.DisableLog = true
	}
	if flag.NArg() > 0 {
		cfg.Tests.Dir = flag.Arg(0)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer app.Close()

	if *interactive {
		if err := app.interact(ctx); err != nil {
			logger.Fatalf("%v", err)
		}
		return
	}

	code, err := app.runOnce(ctx, cfg.Tests.Tags)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	os.Exit(code)
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// app ties the long-lived pieces of one session together: world connection,
// test index and recorder.
type app struct {
	cfg    config.Config
	logger *log.Logger
	client worldclient.Client
	idx    *index.DB
	rec    *recorder.Recorder
}

func newApp(ctx context.Context, cfg config.Config, logger *log.Logger) (*app, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	client, err := worldclient.Dial(dialCtx, cfg.Server, cfg.ClientName, logger)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Server, err)
	}

	a := &app{cfg: cfg, logger: logger, client: client}
	if !cfg.Index.Disable {
		path := cfg.Index.Path
		if path == "" {
			path = filepath.Join(cfg.DataDir, "index.sqlite")
		}
		a.idx, err = index.Open(path)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("open index: %w", err)
		}
	}
	a.rec = recorder.New(client, logger)
	return a, nil
}

func (a *app) Close() {
	if a.idx != nil {
		_ = a.idx.Close()
	}
	_ = a.client.Close()
}

// loadTests reads the configured test tree and refreshes the index.
func (a *app) loadTests(ctx context.Context, tagFilter []string) ([]*spec.Test, error) {
	res, err := loader.Load(a.cfg.Tests.Dir, loader.Options{
		Recursive: a.cfg.Tests.Recursive,
		Tags:      tagFilter,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, err
	}
	for _, s := range res.Skipped {
		a.logger.Printf("invalid definition %s: %v", s.Path, s.Err)
	}
	if a.idx != nil {
		// Index the unfiltered set so lookups see every valid test.
		full, err := loader.Load(a.cfg.Tests.Dir, loader.Options{
			Recursive: a.cfg.Tests.Recursive,
			Logger:    a.logger,
		})
		if err == nil {
			if err := a.idx.Reload(ctx, full.Tests); err != nil {
				a.logger.Printf("index reload: %v", err)
			}
		}
	}
	return res.Tests, nil
}

// runOnce executes the configured test set and renders the report. The exit
// code is 0 only when nothing failed or errored.
func (a *app) runOnce(ctx context.Context, tagFilter []string) (int, error) {
	tests, err := a.loadTests(ctx, tagFilter)
	if err != nil {
		return 1, err
	}
	if len(tests) == 0 {
		return 1, fmt.Errorf("no tests to run under %s", a.cfg.Tests.Dir)
	}
	rr, runErr := a.runTests(ctx, tests, engine.AutoContinue)
	if runErr != nil {
		// Render what we have; the partial results still matter.
		a.logger.Printf("run aborted: %v", runErr)
	}

	out := os.Stdout
	if a.cfg.Run.ReportPath != "" {
		f, err := os.Create(a.cfg.Run.ReportPath)
		if err != nil {
			return 1, err
		}
		defer f.Close()
		out = f
	}
	if err := report.Render(out, a.cfg.Run.Report, rr); err != nil {
		return 1, err
	}

	if runErr != nil || rr.Summary.Failed > 0 || rr.Summary.Errored > 0 {
		return 1, nil
	}
	return 0, nil
}

func (a *app) runTests(ctx context.Context, tests []*spec.Test, ctrl engine.Controller) (result.RunResult, error) {
	started := time.Now()
	agg := result.NewAggregator()

	chunks, skipped := pack.Pack(tests, pack.Options{
		Origin:   a.cfg.PackOrigin(),
		CellSize: a.cfg.Packing.CellSize,
		Margin:   a.cfg.Packing.Margin,
	})
	for _, s := range skipped {
		a.logger.Printf("skipping %s: %v", s.Test.Name, s.Err)
		agg.AddSkipped(s.Test.Name, s.Err.Error())
	}

	var rl *runlog.Writer
	if !a.cfg.Run.DisableLog {
		dir := a.cfg.Run.LogDir
		if dir == "" {
			dir = filepath.Join(a.cfg.DataDir, "runlogs")
		}
		path := runlog.DefaultPath(dir)
		w, err := runlog.Create(path)
		if err != nil {
			a.logger.Printf("run log: %v", err)
		} else {
			a.logger.Printf("run log: %s", path)
			rl = w
			defer rl.Close()
		}
	}

	eng := engine.New(a.client, engine.Options{
		Controller:      ctrl,
		BreakAfterSetup: a.cfg.Run.BreakAfterSetup,
		FailFast:        a.cfg.Run.FailFast,
		ActionDelay:     time.Duration(a.cfg.Run.ActionDelayMs) * time.Millisecond,
		RunLog:          rl,
		Logger:          a.logger,
		Progress: func(chunkID, tick, maxTick int) {
			if tick == maxTick || tick%100 == 0 {
				a.logger.Printf("chunk %d: tick %d/%d", chunkID, tick, maxTick)
			}
		},
	})
	runErr := eng.Run(ctx, chunks, agg)
	rr := agg.Result()

	if a.idx != nil {
		if _, err := a.idx.RecordRun(ctx, started, rr); err != nil {
			a.logger.Printf("record run: %v", err)
		}
	}
	return rr, runErr
}
