// Package search interprets the output of a wrapped engine's search: it
// collects the multipv evaluations and, once the engine reports its best
// move, picks the move to play through the probability engine.
package search

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MateScore is the centipawn magnitude of a mate on the board.
const MateScore = 32000

// ErrCandidateSetIncomplete is returned when the search ended without a rank 1 evaluation.
var ErrCandidateSetIncomplete = errors.New("candidate set incomplete")

// MalformedScoreError reports an evaluation line without a usable score.
// The line is still recorded with a score of 0.
type MalformedScoreError struct {
	Rank int
	Line string
}

func (e *MalformedScoreError) Error() string {
	return fmt.Sprintf("missing score for multipv %d", e.Rank)
}

// MateToCentipawns maps a mate distance to the centipawn scale. Positive n
// means the side to move mates in n, zero or negative means it is mated.
func MateToCentipawns(n int) int {
	if n > 0 {
		return MateScore - n
	}
	return -MateScore - n
}

// Evaluation is the latest report for one multipv rank.
type Evaluation struct {
	Rank   int
	Move   string
	Ponder string // reply predicted by the principal variation, if any
	Score  int    // centipawns, mate scores converted
	Mate   int
	IsMate bool
}

// ScoreString renders the score the way the engine reported it.
func (e Evaluation) ScoreString() string {
	if e.IsMate {
		return fmt.Sprintf("mate %d", e.Mate)
	}
	return fmt.Sprintf("cp %d", e.Score)
}

// ParseInfo extracts an evaluation from an "info" line. ok is false for lines
// that carry no principal variation or no rank. A line with a rank and a
// variation but without a usable score is returned with score 0 and a
// *MalformedScoreError. Lines without a multipv field are taken as rank 1.
func ParseInfo(line string) (ev Evaluation, ok bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "info" {
		return Evaluation{}, false, nil
	}

	var (
		hasRank  bool
		hasScore bool
		pv       []string
	)

scan:
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "string":
			break scan
		case "multipv":
			if i+1 < len(fields) {
				if n, convErr := strconv.Atoi(fields[i+1]); convErr == nil && n > 0 {
					ev.Rank = n
					hasRank = true
				}
				i++
			}
		case "score":
			if i+2 < len(fields) {
				n, convErr := strconv.Atoi(fields[i+2])
				if convErr == nil {
					switch fields[i+1] {
					case "cp":
						ev.Score = n
						hasScore = true
					case "mate":
						ev.Mate = n
						ev.IsMate = true
						ev.Score = MateToCentipawns(n)
						hasScore = true
					}
				}
				i += 2
			}
		case "pv":
			pv = fields[i+1:]
			break scan
		}
	}

	if len(pv) == 0 {
		return Evaluation{}, false, nil
	}
	if !hasRank {
		if !hasScore {
			return Evaluation{}, false, nil
		}
		ev.Rank = 1
	}

	ev.Move = pv[0]
	if len(pv) > 1 {
		ev.Ponder = pv[1]
	}
	if !hasScore {
		return ev, true, &MalformedScoreError{Rank: ev.Rank, Line: line}
	}
	return ev, true, nil
}

// ParseBestMove splits a "bestmove" line.
func ParseBestMove(line string) (move, ponder string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "bestmove" {
		return "", "", false
	}
	if len(fields) >= 4 && fields[2] == "ponder" {
		ponder = fields[3]
	}
	return fields[1], ponder, true
}

// IsBestMove reports whether line terminates a search.
func IsBestMove(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "bestmove")
}

// Collector accumulates the evaluations of one search. Later reports for a
// rank replace earlier ones. Once the best move line is seen the collector is
// finished and ignores further input.
type Collector struct {
	evals    map[int]Evaluation
	bestLine string
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{evals: make(map[int]Evaluation)}
}

// Observe feeds one engine output line. done is true for the terminating
// best move line. A non-nil error is a *MalformedScoreError for a line that
// was recorded with a default score.
func (c *Collector) Observe(line string) (done bool, err error) {
	if c.Done() {
		return true, nil
	}
	if IsBestMove(line) {
		c.bestLine = strings.TrimSpace(line)
		return true, nil
	}

	ev, ok, err := ParseInfo(line)
	if ok {
		c.evals[ev.Rank] = ev
	}
	return false, err
}

// Done reports whether the best move line has been seen.
func (c *Collector) Done() bool {
	return c.bestLine != ""
}

// BestMoveLine returns the engine's own best move line.
func (c *Collector) BestMoveLine() string {
	return c.bestLine
}

// Len returns the number of ranks collected so far.
func (c *Collector) Len() int {
	return len(c.evals)
}

// Candidates returns the collected evaluations ordered by rank.
func (c *Collector) Candidates() ([]Evaluation, error) {
	if _, ok := c.evals[1]; !ok {
		return nil, fmt.Errorf("%w: no rank 1 among %d variations", ErrCandidateSetIncomplete, len(c.evals))
	}

	out := make([]Evaluation, 0, len(c.evals))
	for _, ev := range c.evals {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}
