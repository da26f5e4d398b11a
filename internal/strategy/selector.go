package strategy

import (
	"fmt"

	"github.com/anidbgo/anidbclient/internal/hash"
)

// Selector scores and picks a Strategy for a given FileContext and
// Hint (spec §4.4.5). Strategies are scored in registration order so
// ties favor the earliest-registered strategy.
type Selector struct {
	strategies []Strategy
}

// NewSelector builds a selector with the four built-in strategies
// registered in priority order: Sequential, Multiple, Parallel,
// Hybrid. Registration order is also the tie-break order.
func NewSelector() *Selector {
	return &Selector{
		strategies: []Strategy{Sequential{}, Multiple{}, Parallel{}, Hybrid{}},
	}
}

// Register appends a custom strategy, registered after the built-ins.
func (s *Selector) Register(strat Strategy) {
	s.strategies = append(s.strategies, strat)
}

// Select runs the four-step procedure from spec §4.4.5: hint-filter,
// suitability-filter, adjusted scoring, highest-score-wins with a
// registration-order tie-break and a heuristic fallback.
func (s *Selector) Select(fctx FileContext, hint Hint) (Strategy, error) {
	candidates := filterByHint(s.strategies, hint)

	var best Strategy
	var bestScore int64
	found := false
	for _, strat := range candidates {
		if !strat.IsSuitable(fctx) {
			continue
		}
		score := adjustedScore(strat, fctx, hint)
		if !found || score > bestScore {
			best = strat
			bestScore = score
			found = true
		}
	}
	if found {
		return best, nil
	}

	return fallback(s.strategies, fctx)
}

// filterByHint narrows the candidate list by hint (spec §4.4.5 step 1).
// PreferSequential/PreferParallel restrict to the matching family;
// PreferMemoryEfficiency drops Parallel outright, since its bounded
// broadcast queues are the one strategy whose footprint scales with
// algorithm count; PreferSpeed and Automatic keep every strategy and
// let adjustedScore decide.
func filterByHint(all []Strategy, hint Hint) []Strategy {
	switch hint {
	case PreferSequential:
		return keepNamed(all, "sequential", "multiple")
	case PreferParallel:
		return keepNamed(all, "parallel", "hybrid")
	case PreferMemoryEfficiency:
		return dropNamed(all, "parallel")
	default:
		return all
	}
}

func keepNamed(all []Strategy, names ...string) []Strategy {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	var out []Strategy
	for _, s := range all {
		if set[s.Name()] {
			out = append(out, s)
		}
	}
	return out
}

func dropNamed(all []Strategy, names ...string) []Strategy {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	var out []Strategy
	for _, s := range all {
		if !set[s.Name()] {
			out = append(out, s)
		}
	}
	return out
}

// adjustedScore layers hint bonuses/penalties and the named special
// cases from spec §4.4.5 step 3 on top of a strategy's base score.
func adjustedScore(strat Strategy, fctx FileContext, hint Hint) int64 {
	score := int64(strat.PriorityScore(fctx))

	ed2kCombined := fctx.Algorithms.Contains(hash.TypeED2K) && fctx.Algorithms.Count() > 1
	ed2kAlone := fctx.Algorithms.Contains(hash.TypeED2K) && fctx.Algorithms.Count() == 1

	switch strat.Name() {
	case "hybrid":
		if ed2kCombined {
			score += 200
		}
	case "sequential":
		if ed2kAlone {
			score += 100
		}
	case "parallel":
		if hint == PreferMemoryEfficiency {
			score -= 150
		}
	}

	switch hint {
	case PreferSpeed:
		if strat.Name() == "parallel" {
			score += 50
		}
		if strat.Name() == "hybrid" {
			score += 30
		}
	case PreferMemoryEfficiency:
		if strat.Name() == "sequential" {
			score += 50
		}
		if strat.Name() == "multiple" {
			score += 30
		}
	}

	return score
}

// fallback implements spec §4.4.5 step 4's last resort when nothing
// passed the suitability filter: Sequential for a single algorithm,
// Multiple for a small file, Hybrid otherwise (large and/or
// multi-algorithm).
func fallback(all []Strategy, fctx FileContext) (Strategy, error) {
	find := func(name string) Strategy {
		for _, s := range all {
			if s.Name() == name {
				return s
			}
		}
		return nil
	}

	switch {
	case fctx.Algorithms.Count() == 1:
		if s := find("sequential"); s != nil {
			return s, nil
		}
	case fctx.FileSize <= MediumFileThreshold:
		if s := find("multiple"); s != nil {
			return s, nil
		}
	}
	if s := find("hybrid"); s != nil {
		return s, nil
	}
	return nil, fmt.Errorf("strategy: no registered strategy can handle context %+v", fctx)
}
