package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hailam/guidedclever/internal/config"
	"github.com/hailam/guidedclever/internal/console"
	"github.com/hailam/guidedclever/internal/dispatch"
	"github.com/hailam/guidedclever/internal/engine"
	"github.com/hailam/guidedclever/internal/storage"
	"github.com/hailam/guidedclever/internal/uci"
)

var (
	configPath = flag.String("config", config.DefaultFile, "configuration file")
	showStats  = flag.Bool("stats", false, "print selection journal statistics and exit")
)

func main() {
	flag.Parse()

	if _, err := os.Stat(*configPath); err != nil {
		fmt.Printf("%s file is required to run %s! Exiting ...\n", *configPath, uci.Name)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("info string %v\n", err)
		os.Exit(1)
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		fmt.Printf("info string %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	journal, err := openJournal(cfg.Journal)
	if err != nil {
		// The relay works without a journal.
		log.Error().Err(err).Str("dir", cfg.Journal).Msg("journal unavailable")
	}
	if journal != nil {
		defer journal.Close()
	}

	if *showStats {
		if err := printStats(journal); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, journal, os.Stdin, os.Stdout); err != nil {
		log.Error().Err(err).Msg("session ended")
		if journal != nil {
			journal.Close()
		}
		closeLog()
		os.Exit(1)
	}
}

// run wires the engine, the dispatcher and the front-end loop and blocks
// until the session ends.
func run(cfg *config.Config, journal *storage.Journal, in io.Reader, stdout io.Writer) error {
	out := console.New(stdout)

	proc, err := engine.Start(cfg.EngineFile)
	if err != nil {
		return err
	}
	defer proc.Shutdown(2 * time.Second)
	log.Info().Str("engine", cfg.EngineFile).Int("pid", proc.Pid()).Msg("engine started")

	eng := engine.New(proc, out)
	id, err := eng.Handshake()
	if err != nil {
		return err
	}
	out.Info("%s %s powered by %s", uci.Name, uci.Version, id.Name)

	queue := dispatch.NewQueue()
	signal := &dispatch.Signal{}

	var opts []dispatch.Option
	if journal != nil {
		opts = append(opts, dispatch.WithJournal(journal))
	}
	d := dispatch.New(eng, out, queue, signal, opts...)

	if cfg.K != nil {
		if err := d.SetOption(dispatch.OptionK, strconv.FormatFloat(*cfg.K, 'f', -1, 64)); err != nil {
			out.Info("%v", err)
		}
	}
	for _, opt := range cfg.Options {
		name, ok := id.HasOption(opt.Name)
		if !ok {
			continue
		}
		if err := d.SetOption(name, opt.Value); err != nil {
			return err
		}
		out.Info("setoption name %s value %s", name, opt.Value)
	}

	front := uci.New(in, out, queue, signal, id.OptionLines)

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return d.Run(ctx) })
	g.Go(func() error { return front.Run(ctx) })
	return g.Wait()
}

// setupLogging sends logs to the configured file, or disables them.
// Stdout is reserved for the controller.
func setupLogging(cfg *config.Config) (func(), error) {
	if !cfg.Log {
		zerolog.SetGlobalLevel(zerolog.Disabled)
		return func() {}, nil
	}

	f, err := os.Create(cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	return func() { f.Close() }, nil
}

func openJournal(dir string) (*storage.Journal, error) {
	switch dir {
	case "":
		return nil, nil
	case "default":
		var err error
		if dir, err = storage.GetJournalDir(); err != nil {
			return nil, err
		}
	}
	return storage.Open(dir)
}

func printStats(journal *storage.Journal) error {
	if journal == nil {
		return fmt.Errorf("no journal configured, set Journal in [guidedclever]")
	}

	stats, err := journal.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("Selections: %d\n", stats.Selections)
	fmt.Printf("Top move played: %.1f%%\n", stats.TopRate()*100)
	fmt.Printf("Sampling exhausted: %d\n", stats.Exhausted)
	fmt.Printf("Incomplete searches: %d\n", stats.Incomplete)

	ranks := make([]int, 0, len(stats.ByRank))
	for r := range stats.ByRank {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	for _, r := range ranks {
		fmt.Printf("  rank %2d: %d\n", r, stats.ByRank[r])
	}

	recent, err := journal.Recent(10)
	if err != nil {
		return err
	}
	for _, rec := range recent {
		fmt.Printf("%s  %-6s rank %d of %d  K %g  %s\n",
			rec.Time.Format(time.RFC3339), rec.Move, rec.Rank, len(rec.Candidates), rec.K, rec.Position)
	}
	return nil
}
