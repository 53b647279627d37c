package engine

import (
	"sort"

	"github.com/mselser95/polymarket-sportsbot/internal/strategy"
)

// Aggregate resolves conflicts between signals emitted in the same
// tick and returns them in deterministic execution order.
//
// Within one market, duplicate signals for the same action keep the
// strongest one by urgency, then confidence, then strategy priority.
// Opposing signals on the same outcome keep the higher-confidence side
// and drop the other. Cancels always pass through.
func Aggregate(signals []*strategy.Signal) []*strategy.Signal {
	if len(signals) == 0 {
		return nil
	}

	byMarket := make(map[string][]*strategy.Signal)
	order := make([]string, 0, len(signals))
	for _, sig := range signals {
		if _, seen := byMarket[sig.MarketSlug]; !seen {
			order = append(order, sig.MarketSlug)
		}
		byMarket[sig.MarketSlug] = append(byMarket[sig.MarketSlug], sig)
	}
	sort.Strings(order)

	out := make([]*strategy.Signal, 0, len(signals))
	for _, slug := range order {
		out = append(out, resolveMarket(byMarket[slug])...)
	}
	return out
}

func resolveMarket(signals []*strategy.Signal) []*strategy.Signal {
	cancels := make([]*strategy.Signal, 0, 2)
	best := make(map[strategy.Action]*strategy.Signal)

	for _, sig := range signals {
		if sig.Action == strategy.ActionCancel {
			cancels = append(cancels, sig)
			continue
		}
		if cur, ok := best[sig.Action]; !ok || stronger(sig, cur) {
			if cur != nil {
				SignalsDroppedTotal.WithLabelValues("duplicate").Inc()
			}
			best[sig.Action] = sig
		} else {
			SignalsDroppedTotal.WithLabelValues("duplicate").Inc()
		}
	}

	actions := make([]strategy.Action, 0, len(best))
	for action := range best {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })

	dropped := make(map[strategy.Action]bool)
	for i, a := range actions {
		for _, b := range actions[i+1:] {
			if dropped[a] || dropped[b] || !a.Opposes(b) {
				continue
			}
			loser := b
			if weaker(best[a], best[b]) {
				loser = a
			}
			dropped[loser] = true
			SignalsDroppedTotal.WithLabelValues("opposing").Inc()
		}
	}

	out := make([]*strategy.Signal, 0, len(cancels)+len(best))
	out = append(out, cancels...)
	for _, action := range actions {
		if !dropped[action] {
			out = append(out, best[action])
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Strategy != out[j].Strategy {
			return strategy.Priority(out[i].Strategy) < strategy.Priority(out[j].Strategy)
		}
		return out[i].Action < out[j].Action
	})
	return out
}

// stronger orders duplicates: urgency first, then confidence, then
// strategy priority.
func stronger(a, b *strategy.Signal) bool {
	if a.Urgency != b.Urgency {
		return a.Urgency > b.Urgency
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return strategy.Priority(a.Strategy) < strategy.Priority(b.Strategy)
}

// weaker orders opposing signals: confidence first, then urgency, then
// strategy priority.
func weaker(a, b *strategy.Signal) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence < b.Confidence
	}
	if a.Urgency != b.Urgency {
		return a.Urgency < b.Urgency
	}
	return strategy.Priority(a.Strategy) > strategy.Priority(b.Strategy)
}
