// Command demo-sim mounts demo widgets on an accelerated clock and prints
// their snapshots as JSON lines, without any network surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/signalsfoundry/livedemo/internal/catalog"
	"github.com/signalsfoundry/livedemo/internal/engine"
	"github.com/signalsfoundry/livedemo/internal/host"
	"github.com/signalsfoundry/livedemo/internal/logging"
	"github.com/signalsfoundry/livedemo/timectrl"
)

// Options controls a simulation run.
type Options struct {
	CatalogPath string
	Kinds       []string // empty means every catalog widget
	Duration    time.Duration
	Tick        time.Duration
	Seed        int64
	FinalOnly   bool
}

func main() {
	opts := Options{}
	kind := flag.String("kind", "", "Comma-separated widget kinds to run (default: every widget in the catalog)")
	flag.StringVar(&opts.CatalogPath, "catalog", "", "Path to a widget catalog YAML file (default: embedded catalog)")
	flag.DurationVar(&opts.Duration, "duration", 30*time.Second, "Simulated time to run")
	flag.DurationVar(&opts.Tick, "tick", 10*time.Millisecond, "Simulated time per loop iteration")
	flag.Int64Var(&opts.Seed, "seed", 1, "Seed for widget randomness (0 seeds from the clock)")
	flag.BoolVar(&opts.FinalOnly, "final-only", false, "Print only the last snapshot of each widget")
	flag.Parse()
	for _, k := range strings.Split(*kind, ",") {
		if k = strings.TrimSpace(k); k != "" {
			opts.Kinds = append(opts.Kinds, k)
		}
	}

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	counts, err := simulate(ctx, opts, os.Stdout, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "demo-sim: %v\n", err)
		os.Exit(1)
	}
	for k, n := range counts {
		log.Info(ctx, "simulation finished", logging.String("kind", k), logging.Int("snapshots", n))
	}
}

// simulate runs the requested widgets for opts.Duration of loop time and
// writes snapshots to out. It returns how many snapshots each kind produced.
// The first failed write to out stops the run and is returned.
func simulate(ctx context.Context, opts Options, out io.Writer, log logging.Logger) (map[string]int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cat, err := catalog.LoadFile(opts.CatalogPath)
	if err != nil {
		return nil, err
	}
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = cat.Kinds()
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tc := timectrl.NewTimeController(start, opts.Tick, timectrl.Accelerated)
	hub := host.NewHub(cat,
		host.WithClock(tc),
		host.WithSeed(opts.Seed),
		host.WithBuffer(1<<14),
		host.WithHubLogger(log),
	)

	var (
		mu       sync.Mutex
		enc      = json.NewEncoder(out)
		writeErr error
		counts   = make(map[string]int, len(kinds))
		wg       sync.WaitGroup
	)
	// write is called with mu held.
	write := func(snap engine.Snapshot) {
		if writeErr != nil {
			return
		}
		if err := enc.Encode(snap); err != nil {
			writeErr = fmt.Errorf("write snapshot: %w", err)
			cancel()
		}
	}
	for _, k := range kinds {
		sub, err := hub.Subscribe(ctx, k)
		if err != nil {
			hub.Close()
			return nil, err
		}
		wg.Add(1)
		go func(sub *host.Subscription) {
			defer wg.Done()
			var last engine.Snapshot
			n := 0
			for snap := range sub.C() {
				n++
				last = snap
				if opts.FinalOnly {
					continue
				}
				mu.Lock()
				write(snap)
				mu.Unlock()
			}
			mu.Lock()
			defer mu.Unlock()
			counts[sub.Kind()] += n
			if opts.FinalOnly && n > 0 {
				write(last)
			}
		}(sub)
	}

	if err := hub.RunFor(ctx, opts.Duration); err != nil {
		return nil, err
	}
	wg.Wait()
	if writeErr != nil {
		return counts, writeErr
	}
	return counts, nil
}
