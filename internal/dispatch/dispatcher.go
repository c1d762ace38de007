package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hailam/guidedclever/internal/engine"
	"github.com/hailam/guidedclever/internal/proba"
	"github.com/hailam/guidedclever/internal/search"
	"github.com/hailam/guidedclever/internal/storage"
)

// Temperature option
const (
	OptionK  = "K"
	DefaultK = 1.0
	MaxK     = 1000.0
)

// ErrInvalidTemperature is returned for a rejected K. The previous K stays.
var ErrInvalidTemperature = errors.New("invalid temperature")

// Printer receives lines for the controller.
type Printer interface {
	Println(line string)
}

// Journal records finished selections.
type Journal interface {
	Record(storage.Record) error
	RecordIncomplete() error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSampler replaces the clock-seeded sampler.
func WithSampler(s *proba.Sampler) Option {
	return func(d *Dispatcher) { d.sampler = s }
}

// WithJournal records every selection in j.
func WithJournal(j Journal) Option {
	return func(d *Dispatcher) { d.journal = j }
}

// Dispatcher is the single consumer of the command queue and the only user
// of the engine adapter. K and the other session state are touched only
// from its goroutine.
type Dispatcher struct {
	eng     *engine.Engine
	out     Printer
	queue   *Queue
	signal  *Signal
	sampler *proba.Sampler
	journal Journal

	k        float64
	multiPV  int
	spread   bool // last candidate set had unequal scores
	position string

	ponder     *search.Collector
	ponderLine string
}

// New returns a dispatcher consuming queue and driving eng.
func New(eng *engine.Engine, out Printer, queue *Queue, signal *Signal, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		eng:     eng,
		out:     out,
		queue:   queue,
		signal:  signal,
		k:       DefaultK,
		multiPV: 1,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sampler == nil {
		d.sampler = proba.NewSampler(nil)
	}
	return d
}

// K returns the current temperature.
func (d *Dispatcher) K() float64 {
	return d.k
}

// Run applies queued commands in order until quit. It returns a non-nil
// error only when the engine connection is lost or ctx ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		cmd, err := d.queue.Pop(ctx)
		if err != nil {
			return err
		}
		log.Info().Str("kind", cmd.Kind.String()).Str("cmd", cmd.Line).Msg("dispatch")

		quit, err := d.handle(cmd)
		if err != nil {
			log.Error().Err(err).Str("cmd", cmd.Line).Msg("engine lost")
			return err
		}
		if quit {
			return nil
		}
	}
}

func (d *Dispatcher) handle(cmd Command) (quit bool, err error) {
	switch cmd.Kind {
	case KindPosition:
		d.position = cmd.Line
		return false, d.eng.SetPosition(cmd.Line)

	case KindIsReady:
		return false, d.eng.AwaitReady()

	case KindSetOption:
		name, value := ParseSetOption(cmd.Line)
		err := d.SetOption(name, value)
		if errors.Is(err, ErrInvalidTemperature) {
			d.out.Println("info string " + err.Error())
			return false, nil
		}
		return false, err

	case KindNewGame:
		d.spread = false
		return false, d.eng.NewGame()

	case KindGo:
		return false, d.runSearch(cmd.Line)

	case KindGoInfinite:
		return false, d.eng.SearchUnbounded(cmd.Line, nil, d.interruption())

	case KindGoPonder:
		d.ponder = search.NewCollector()
		d.ponderLine = cmd.Line
		return false, d.eng.Ponder(cmd.Line, d.ponder, d.interruption())

	case KindStop:
		d.ponder = nil
		line, err := d.eng.Interrupt(nil)
		if err != nil {
			return false, err
		}
		if line != "" {
			d.out.Println(line)
		}
		return false, nil

	case KindPonderHit:
		c := d.ponder
		d.ponder = nil
		line, err := d.eng.PonderHit(c)
		if err != nil || line == "" {
			return false, err
		}
		if c == nil {
			d.out.Println(line)
			return false, nil
		}
		d.finalize(c, d.ponderLine)
		return false, nil

	case KindQuit:
		if err := d.eng.Terminate(); err != nil {
			log.Warn().Err(err).Msg("quit not delivered")
		}
		return true, nil
	}

	log.Warn().Str("cmd", cmd.Line).Msg("unhandled command")
	return false, nil
}

// SetOption applies "setoption". The temperature option is kept here and
// never reaches the engine.
func (d *Dispatcher) SetOption(name, value string) error {
	if strings.EqualFold(name, OptionK) {
		if err := d.SetTemperature(value); err != nil {
			log.Warn().Err(err).Float64("k", d.k).Msg("temperature rejected")
			return err
		}
		log.Info().Float64("k", d.k).Msg("temperature set")
		return nil
	}

	if strings.EqualFold(name, "MultiPV") {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			d.multiPV = n
		}
	}
	return d.eng.SetOption(name, value)
}

// SetTemperature parses and installs a new K. Values outside [0, MaxK] are
// rejected, as is 0 while more than one candidate can compete.
func (d *Dispatcher) SetTemperature(value string) error {
	k, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(k) || k < 0 || k > MaxK {
		return fmt.Errorf("%w: %q is outside [0, %g], keeping K %g", ErrInvalidTemperature, value, MaxK, d.k)
	}
	if k == 0 && (d.multiPV > 1 || d.spread) {
		return fmt.Errorf("%w: K 0 with several candidates, keeping K %g", ErrInvalidTemperature, d.k)
	}
	d.k = k
	return nil
}

func (d *Dispatcher) interruption() engine.Cancellation {
	return interruption{signal: d.signal, queue: d.queue}
}

func (d *Dispatcher) runSearch(goLine string) error {
	c := search.NewCollector()
	if err := d.eng.Search(goLine, c, d.interruption()); err != nil {
		return err
	}
	d.finalize(c, goLine)
	return nil
}

// finalize picks the move from a finished search. When no selection is
// possible the engine's own best move line is passed on unchanged after
// the diagnostic.
func (d *Dispatcher) finalize(c *search.Collector, goLine string) {
	res, err := d.selectMove(c)
	if err != nil {
		log.Error().Err(err).Str("go", goLine).Msg("selection failed")
		d.out.Println("info string error: " + err.Error())
		if d.journal != nil {
			if err := d.journal.RecordIncomplete(); err != nil {
				log.Error().Err(err).Msg("journal write failed")
			}
		}
		d.out.Println(c.BestMoveLine())
		return
	}

	d.spread = res.Spread()
	if res.Exhausted {
		log.Warn().Int("attempts", res.Attempts).Floats64("f", res.F).Msg("sampling exhausted")
	}
	log.Info().
		Float64("k", res.K).
		Int("rank", res.Rank).
		Float64("draw", res.Draw).
		Str("move", res.Chosen.Move).
		Msg("move selected")

	for _, line := range res.Report() {
		d.out.Println(line)
	}
	_, enginePonder, _ := search.ParseBestMove(c.BestMoveLine())
	d.out.Println(res.BestMove(enginePonder != ""))

	d.record(res, goLine)
}

func (d *Dispatcher) selectMove(c *search.Collector) (*search.Result, error) {
	cands, err := c.Candidates()
	if err != nil {
		return nil, err
	}
	return search.Select(cands, d.k, d.sampler)
}

func (d *Dispatcher) record(res *search.Result, goLine string) {
	if d.journal == nil {
		return
	}

	rec := storage.Record{
		Time:      time.Now(),
		Position:  d.position,
		Go:        goLine,
		K:         res.K,
		Rank:      res.Rank,
		Draw:      res.Draw,
		Exhausted: res.Exhausted,
		Move:      res.Chosen.Move,
	}
	for i, ev := range res.Candidates {
		rec.Candidates = append(rec.Candidates, storage.Candidate{
			Rank:  ev.Rank,
			Move:  ev.Move,
			Score: ev.Score,
			P:     res.P[i],
			F:     res.F[i],
		})
	}
	if err := d.journal.Record(rec); err != nil {
		log.Error().Err(err).Msg("journal write failed")
	}
}
