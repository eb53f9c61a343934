package application

import (
	"errors"
	"fmt"
	"log"
	"sort"

	billing "pik-billing/internal/billing/domain"
	"pik-billing/internal/billing/rules"
	"pik-billing/internal/observability/metrics"
)

// Replay is the outcome of one pass of the event stream through the rule tree.
type Replay struct {
	Events    int
	Lines     []billing.InvoiceLine
	Unmatched []billing.Event
}

// Engine evaluates events against a fixed rule tree.
type Engine struct {
	rules  rules.Rule
	logger *log.Logger
}

// NewEngine constructs an engine.
func NewEngine(tree rules.Rule, logger *log.Logger) (*Engine, error) {
	if tree == nil {
		return nil, errors.New("billing engine: nil rule tree")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{rules: tree, logger: logger}, nil
}

// SortEvents returns a copy of events ordered by date. Events on the same day
// keep their stream order.
func SortEvents(events []billing.Event) []billing.Event {
	sorted := make([]billing.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date().Before(sorted[j].Date())
	})
	return sorted
}

// Replay evaluates every event exactly once, in date order, against state.
// A context can only be replayed once; events that produce no lines are logged
// and reported, not treated as errors.
func (e *Engine) Replay(state *billing.BillingContext, events []billing.Event) (*Replay, error) {
	if state == nil {
		return nil, errors.New("billing engine: nil context")
	}
	if err := state.MarkReplayed(); err != nil {
		return nil, err
	}
	out := &Replay{}
	for _, ev := range SortEvents(events) {
		lines, err := e.rules.Invoice(state, ev)
		if err != nil {
			return nil, fmt.Errorf("billing engine: %s: %w", ev, err)
		}
		out.Events++
		metrics.IncEvent(ev.Kind().String())
		if len(lines) == 0 {
			e.logger.Printf("billing engine: no rule matched event %s", ev)
			metrics.IncUnmatched(ev.Kind().String())
			out.Unmatched = append(out.Unmatched, ev)
			continue
		}
		out.Lines = append(out.Lines, lines...)
	}
	metrics.AddLines(len(out.Lines))
	return out, nil
}
