// Package testutil provides shared helpers for tests: a migrated Postgres
// connection and in-memory fakes for the pipeline's collaborators.
package testutil

import (
	"context"
	"sync"
)

// FakeNarrator records everything it is asked to speak. Errs can be primed to
// inject per-call failures (nil entries mean success); once exhausted, calls
// succeed.
type FakeNarrator struct {
	mu         sync.Mutex
	Utterances []string
	Errs       []error
}

func (f *FakeNarrator) Name() string { return "fake" }

func (f *FakeNarrator) Speak(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Utterances = append(f.Utterances, text)
	if len(f.Errs) > 0 {
		err := f.Errs[0]
		f.Errs = f.Errs[1:]
		return err
	}
	return nil
}

// Spoken returns a copy of the utterances recorded so far.
func (f *FakeNarrator) Spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Utterances))
	copy(out, f.Utterances)
	return out
}
