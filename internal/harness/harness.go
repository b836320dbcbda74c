package harness

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/roach88/packrelay/internal/engine"
	"github.com/roach88/packrelay/internal/event"
	"github.com/roach88/packrelay/internal/filter"
	"github.com/roach88/packrelay/internal/store"
	"github.com/roach88/packrelay/internal/testutil"
)

// Harness is the scenario execution engine.
// It drives a real engine over a private store with deterministic keys.
type Harness struct {
	engine *engine.Engine
	keys   *testutil.Keyring

	// sent maps labels to the events published under them.
	sent map[string]event.Event

	// labels maps stored event ids back to their labels.
	labels map[string]string
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh database in a temporary directory,
// removed before Run returns.
//
// Execution flow:
//  1. Open a fresh store and start the engine's ingest loop
//  2. Sign and submit every publish step in order, checking outcomes
//  3. Run every query step, translating result ids back to labels
//  4. Stop the engine and close the store
//
// An error is returned only when the scenario could not be executed.
// Failed expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "packrelay-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var opts []engine.Option
	if scenario.MaxLimit > 0 {
		opts = append(opts, engine.WithMaxLimit(scenario.MaxLimit))
	}
	eng := engine.New(st, opts...)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- eng.Run(runCtx) }()
	defer func() {
		eng.Stop()
		<-done
		cancel()
	}()

	h := &Harness{
		engine: eng,
		keys:   testutil.NewKeyring(),
		sent:   make(map[string]event.Event),
		labels: make(map[string]string),
	}

	result := NewResult()
	for i, step := range scenario.Publish {
		if err := h.publish(ctx, i, step, result); err != nil {
			return nil, err
		}
	}
	for i, q := range scenario.Queries {
		if err := h.query(ctx, i, q, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// publish runs one publish step.
func (h *Harness) publish(ctx context.Context, i int, step PublishStep, result *Result) error {
	label := step.Label
	var ev event.Event

	if step.Republish != "" {
		prev, ok := h.sent[step.Republish]
		if !ok {
			return fmt.Errorf("publish[%d]: republish refers to unknown label %q", i, step.Republish)
		}
		ev = prev
		if label == "" {
			label = step.Republish
		}
	} else {
		var err error
		ev, err = h.build(step)
		if err != nil {
			return fmt.Errorf("publish[%d]: %w", i, err)
		}
		h.sent[label] = ev
	}

	res := h.engine.Submit(ctx, ev)
	if res.Outcome == engine.OutcomeFailed {
		return fmt.Errorf("publish[%d] %s: %w", i, label, res.Err)
	}
	if res.Accepted() {
		if _, known := h.labels[ev.ID]; !known {
			h.labels[ev.ID] = label
		}
	}

	outcome := res.Outcome.String()
	result.AddPublishTrace(label, outcome)
	if step.Expect != "" && step.Expect != outcome {
		result.AddError(fmt.Sprintf("publish[%d] %s: expected %s, got %s (%s)",
			i, label, step.Expect, outcome, res.Reason()))
	}
	return nil
}

// build signs the event described by step and applies any tampering.
func (h *Harness) build(step PublishStep) (event.Event, error) {
	tags := make(event.Tags, 0, len(step.Tags))
	for _, t := range step.Tags {
		tags = append(tags, event.Tag(t))
	}

	ev := event.Event{
		CreatedAt: step.CreatedAt,
		Kind:      step.Kind,
		Tags:      tags,
		Content:   step.Content,
	}
	if err := event.Sign(&ev, h.keys.Key(step.Key)); err != nil {
		return event.Event{}, err
	}

	switch step.Tamper {
	case TamperContent:
		ev.Content += " (tampered)"
	case TamperSig:
		ev.Sig = flipLastHex(ev.Sig)
	}
	return ev, nil
}

// query runs one query step.
func (h *Harness) query(ctx context.Context, i int, q QueryStep, result *Result) error {
	filters := make([]filter.Filter, 0, len(q.Filters))
	for j, raw := range q.Filters {
		f, err := parseFilter(raw, h.resolveAuthor)
		if err != nil {
			return fmt.Errorf("queries[%d].filters[%d]: %w", i, j, err)
		}
		filters = append(filters, f)
	}

	sets, err := h.engine.QueryAll(ctx, filters)
	if err != nil {
		return fmt.Errorf("queries[%d] %s: %w", i, q.Name, err)
	}

	got := make([][]string, len(sets))
	for j, set := range sets {
		got[j] = make([]string, 0, len(set))
		for _, se := range set {
			got[j] = append(got[j], h.label(se.ID))
		}
	}

	result.AddQueryTrace(q.Name, got)
	if q.Expect != nil && !slices.EqualFunc(q.Expect, got, func(a, b []string) bool { return slices.Equal(a, b) }) {
		result.AddError(fmt.Sprintf("query %q: expected %v, got %v", q.Name, q.Expect, got))
	}
	return nil
}

// resolveAuthor maps a publisher name to its public key. Values that are
// already keys pass through.
func (h *Harness) resolveAuthor(name string) string {
	if isPubKey(name) {
		return name
	}
	return h.keys.PubKey(name)
}

func isPubKey(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// label returns the label an id was published under, or the id itself for
// rows the scenario did not write.
func (h *Harness) label(id string) string {
	if l, ok := h.labels[id]; ok {
		return l
	}
	return id
}

// flipLastHex changes the final hex digit of s.
func flipLastHex(s string) string {
	if s == "" {
		return s
	}
	last := s[len(s)-1]
	repl := byte('0')
	if last == '0' {
		repl = '1'
	}
	return s[:len(s)-1] + string(repl)
}
