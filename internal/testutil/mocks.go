// Package testutil provides shared test utilities and mocks for unit testing.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wordlens/wordlens/internal/engine"
)

// FakeEngine implements engine.Engine for testing. Behavior is scripted per
// field; zero value is a ready engine that succeeds instantly.
type FakeEngine struct {
	EngineName string
	DeviceName string

	// InitErr makes Initialize fail.
	InitErr error
	// InitDelay stalls Initialize, for concurrent-warm tests.
	InitDelay time.Duration

	// ExtractResult and ExtractErr script Extract's return values. A nil
	// ExtractResult with nil ExtractErr yields a generic success.
	ExtractResult *engine.Result
	ExtractErr    error
	// ExtractDelay stalls Extract, for deadline tests.
	ExtractDelay time.Duration
	// ExtractPanic makes Extract panic.
	ExtractPanic bool

	// Milestones are reported to the sink before any scripted delay, the
	// way a real engine reports progress before stalling in inference.
	Milestones []int

	initCalls    atomic.Int64
	extractCalls atomic.Int64

	mu      sync.Mutex
	closed  bool
	lastCtx context.Context
}

func (f *FakeEngine) Name() string {
	if f.EngineName == "" {
		return "fake"
	}
	return f.EngineName
}

func (f *FakeEngine) Device() string {
	if f.DeviceName == "" {
		return "cpu"
	}
	return f.DeviceName
}

func (f *FakeEngine) Initialize(ctx context.Context) error {
	f.initCalls.Add(1)
	if f.InitDelay > 0 {
		select {
		case <-time.After(f.InitDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.InitErr
}

func (f *FakeEngine) Extract(ctx context.Context, imagePath, language string, sink engine.ProgressSink) (*engine.Result, error) {
	f.extractCalls.Add(1)
	f.mu.Lock()
	f.lastCtx = ctx
	f.mu.Unlock()
	if f.ExtractPanic {
		panic("scripted extraction panic")
	}
	for _, pct := range f.Milestones {
		sink.Progress("working", pct)
	}
	if f.ExtractDelay > 0 {
		time.Sleep(f.ExtractDelay)
	}
	if f.ExtractErr != nil {
		return nil, f.ExtractErr
	}
	if f.ExtractResult != nil {
		res := *f.ExtractResult
		return &res, nil
	}
	return &engine.Result{
		Text:       "fake text",
		Confidence: 90.0,
		Language:   language,
		Engine:     f.Name(),
		WordCount:  2,
		Success:    true,
	}, nil
}

func (f *FakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// InitCalls reports how many times Initialize ran.
func (f *FakeEngine) InitCalls() int64 { return f.initCalls.Load() }

// ExtractCalls reports how many times Extract ran.
func (f *FakeEngine) ExtractCalls() int64 { return f.extractCalls.Load() }

// Closed reports whether Close was called.
func (f *FakeEngine) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// LastContext returns the context the most recent Extract call received.
func (f *FakeEngine) LastContext() context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCtx
}

// CollectSink records every milestone it receives.
type CollectSink struct {
	mu     sync.Mutex
	events []SinkEvent
}

// SinkEvent is one recorded progress milestone.
type SinkEvent struct {
	Message string
	Percent int
}

func (c *CollectSink) Progress(message string, percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, SinkEvent{Message: message, Percent: percent})
}

// Events returns a copy of the recorded milestones.
func (c *CollectSink) Events() []SinkEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SinkEvent, len(c.events))
	copy(out, c.events)
	return out
}

// Percents returns just the percent values in delivery order.
func (c *CollectSink) Percents() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Percent
	}
	return out
}
