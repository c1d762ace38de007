package search

import (
	"fmt"
	"math"

	"github.com/hailam/guidedclever/internal/proba"
)

// Result is a finished guided selection.
type Result struct {
	K          float64
	Candidates []Evaluation
	Scores     []float64 // pawns, 2 decimals
	Deficits   []float64 // Scores[i] - Scores[0]
	P          []float64
	F          []float64
	proba.Selection

	Chosen Evaluation
}

// Select computes the distribution over cands, which must be ordered by rank
// starting at rank 1, and draws the move to play.
func Select(cands []Evaluation, k float64, sampler *proba.Sampler) (*Result, error) {
	if len(cands) == 0 || cands[0].Rank != 1 {
		return nil, fmt.Errorf("%w: rank 1 is not the reference", ErrCandidateSetIncomplete)
	}

	r := &Result{
		K:          k,
		Candidates: cands,
		Scores:     make([]float64, len(cands)),
		Deficits:   make([]float64, len(cands)),
	}
	top := float64(cands[0].Score) / 100
	for i, ev := range cands {
		r.Scores[i] = round2(float64(ev.Score) / 100)
		r.Deficits[i] = round2(r.Scores[i] - top)
	}

	var err error
	r.P, r.F, err = proba.Distribution(r.Deficits, k)
	if err != nil {
		return nil, err
	}

	r.Selection = sampler.Sample(r.F)
	r.Chosen = cands[r.Rank-1]
	return r, nil
}

// Spread reports whether the candidates carry more than one distinct score.
func (r *Result) Spread() bool {
	for _, ev := range r.Candidates[1:] {
		if ev.Score != r.Candidates[0].Score {
			return true
		}
	}
	return false
}

// Report renders the distribution table and the draw as diagnostic lines,
// followed by the score of the chosen variation.
func (r *Result) Report() []string {
	lines := make([]string, 0, len(r.Candidates)+5)
	lines = append(lines, fmt.Sprintf("info string K %g", r.K))
	lines = append(lines, fmt.Sprintf("info string %4s %-7s %8s %8s %7s %7s", "num", "move", "scores", "d(i)", "P(i)", "F(i)"))
	for i, ev := range r.Candidates {
		lines = append(lines, fmt.Sprintf("info string %4d %-7s %8.2f %8.2f %7.4f %7.4f",
			ev.Rank, ev.Move, r.Scores[i], r.Deficits[i], r.P[i], r.F[i]))
	}

	lo, hi := proba.Bounds(r.F)
	lines = append(lines, fmt.Sprintf("info string movenumber %d randomnumber %.4f minf %.4f maxf %.4f",
		r.Rank, r.Draw, lo, hi))
	if r.Exhausted {
		lines = append(lines, fmt.Sprintf("info string sampling exhausted after %d draws, playing the top candidate", r.Attempts))
	}
	lines = append(lines, "info score "+r.Chosen.ScoreString())
	return lines
}

// BestMove renders the final move line. The predicted reply is included
// when withPonder is set and the chosen variation has one.
func (r *Result) BestMove(withPonder bool) string {
	if withPonder && r.Chosen.Ponder != "" {
		return fmt.Sprintf("bestmove %s ponder %s", r.Chosen.Move, r.Chosen.Ponder)
	}
	return "bestmove " + r.Chosen.Move
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
