package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordlens/wordlens/internal/engine"
	"github.com/wordlens/wordlens/internal/testutil"
)

func newTestOrchestrator(primary, secondary engine.Engine, deadlines map[string]time.Duration) *engine.Orchestrator {
	reg := engine.NewRegistry()
	reg.Register(primary.Name(), primary)
	reg.Register(secondary.Name(), secondary)
	return engine.NewOrchestrator(reg, engine.OrchestratorConfig{
		Primary:   primary.Name(),
		Secondary: secondary.Name(),
		Deadlines: deadlines,
	})
}

func TestOrchestratorProcess(t *testing.T) {
	slow := map[string]time.Duration{"vlm": time.Second, "tesseract": time.Second}

	t.Run("primary success returns unchanged and skips secondary", func(t *testing.T) {
		primary := &testutil.FakeEngine{
			EngineName: "vlm",
			ExtractResult: &engine.Result{
				Text:       "recognized text",
				Confidence: 90.0,
				Engine:     "vlm",
				WordCount:  2,
				Success:    true,
			},
		}
		secondary := &testutil.FakeEngine{EngineName: "tesseract"}
		orch := newTestOrchestrator(primary, secondary, slow)

		res := orch.Process(context.Background(), engine.Request{
			ImagePath: "img.png", Language: "eng", Mode: engine.SelectAuto,
		}, nil)

		require.True(t, res.Success)
		assert.Equal(t, "recognized text", res.Text)
		assert.Equal(t, "vlm", res.Engine)
		assert.Empty(t, res.Error)
		assert.Equal(t, int64(0), secondary.ExtractCalls(), "no fallback after success")
	})

	t.Run("soft failure cascades to secondary", func(t *testing.T) {
		primary := &testutil.FakeEngine{
			EngineName:    "vlm",
			ExtractResult: &engine.Result{Success: false, Error: "no text detected", Engine: "vlm"},
		}
		secondary := &testutil.FakeEngine{
			EngineName: "tesseract",
			ExtractResult: &engine.Result{
				Text: "fallback text", Engine: "tesseract", Success: true,
			},
		}
		orch := newTestOrchestrator(primary, secondary, slow)

		fallbacks := 0
		orch.SetFallbackObserver(func() { fallbacks++ })

		res := orch.Process(context.Background(), engine.Request{Mode: engine.SelectAuto}, nil)

		require.True(t, res.Success)
		assert.Equal(t, "tesseract", res.Engine)
		assert.Equal(t, "fallback text", res.Text)
		assert.Equal(t, int64(1), primary.ExtractCalls())
		assert.Equal(t, int64(1), secondary.ExtractCalls())
		assert.Equal(t, 1, fallbacks)
	})

	t.Run("primary timeout cascades to secondary", func(t *testing.T) {
		primary := &testutil.FakeEngine{
			EngineName:   "vlm",
			ExtractDelay: 200 * time.Millisecond,
		}
		secondary := &testutil.FakeEngine{
			EngineName:    "tesseract",
			ExtractResult: &engine.Result{Text: "rescued", Engine: "tesseract", Success: true},
		}
		orch := newTestOrchestrator(primary, secondary, map[string]time.Duration{
			"vlm": 20 * time.Millisecond, "tesseract": time.Second,
		})

		res := orch.Process(context.Background(), engine.Request{Mode: engine.SelectAuto}, nil)

		require.True(t, res.Success)
		assert.Equal(t, "tesseract", res.Engine)
	})

	t.Run("combined failure names every attempted engine", func(t *testing.T) {
		primary := &testutil.FakeEngine{
			EngineName:    "vlm",
			ExtractResult: &engine.Result{Success: false, Error: "model refused", Engine: "vlm"},
		}
		secondary := &testutil.FakeEngine{
			EngineName: "tesseract",
			ExtractErr: errors.New("tesseract crashed"),
		}
		orch := newTestOrchestrator(primary, secondary, slow)

		res := orch.Process(context.Background(), engine.Request{Language: "eng", Mode: engine.SelectAuto}, nil)

		require.NotNil(t, res)
		assert.False(t, res.Success)
		assert.Equal(t, "none", res.Engine)
		assert.Equal(t, "eng", res.Language)
		assert.Contains(t, res.Error, "all OCR engines failed")
		assert.Contains(t, res.Error, "vlm: model refused")
		assert.Contains(t, res.Error, "tesseract: tesseract crashed")
		assert.True(t, res.FallbackRecommended)
		assert.False(t, res.TimeoutOccurred)
	})

	t.Run("timeout is preserved in the combined failure", func(t *testing.T) {
		primary := &testutil.FakeEngine{
			EngineName:   "vlm",
			ExtractDelay: 200 * time.Millisecond,
		}
		secondary := &testutil.FakeEngine{
			EngineName:    "tesseract",
			ExtractResult: &engine.Result{Success: false, Error: "nothing legible", Engine: "tesseract"},
		}
		orch := newTestOrchestrator(primary, secondary, map[string]time.Duration{
			"vlm": 20 * time.Millisecond, "tesseract": time.Second,
		})

		res := orch.Process(context.Background(), engine.Request{Mode: engine.SelectAuto}, nil)

		assert.False(t, res.Success)
		assert.True(t, res.TimeoutOccurred)
		assert.Contains(t, res.Error, "timed out")
		assert.Contains(t, res.Error, "tesseract: nothing legible")
	})

	t.Run("primary mode never touches the secondary", func(t *testing.T) {
		primary := &testutil.FakeEngine{
			EngineName:    "vlm",
			ExtractResult: &engine.Result{Success: false, Error: "nope", Engine: "vlm"},
		}
		secondary := &testutil.FakeEngine{EngineName: "tesseract"}
		orch := newTestOrchestrator(primary, secondary, slow)

		res := orch.Process(context.Background(), engine.Request{Mode: engine.SelectPrimary}, nil)

		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "vlm: nope")
		assert.Equal(t, int64(0), secondary.ExtractCalls())
		assert.False(t, res.FallbackRecommended, "single-engine mode has no fallback to recommend")
	})

	t.Run("secondary mode runs only the secondary", func(t *testing.T) {
		primary := &testutil.FakeEngine{EngineName: "vlm"}
		secondary := &testutil.FakeEngine{
			EngineName:    "tesseract",
			ExtractResult: &engine.Result{Text: "direct", Engine: "tesseract", Success: true},
		}
		orch := newTestOrchestrator(primary, secondary, slow)

		res := orch.Process(context.Background(), engine.Request{Mode: engine.SelectSecondary}, nil)

		require.True(t, res.Success)
		assert.Equal(t, "tesseract", res.Engine)
		assert.Equal(t, int64(0), primary.ExtractCalls())
	})

	t.Run("panicking engine is contained and cascades", func(t *testing.T) {
		primary := &testutil.FakeEngine{EngineName: "vlm", ExtractPanic: true}
		secondary := &testutil.FakeEngine{
			EngineName:    "tesseract",
			ExtractResult: &engine.Result{Text: "survived", Engine: "tesseract", Success: true},
		}
		orch := newTestOrchestrator(primary, secondary, slow)

		res := orch.Process(context.Background(), engine.Request{Mode: engine.SelectAuto}, nil)

		require.True(t, res.Success)
		assert.Equal(t, "tesseract", res.Engine)
	})

	t.Run("attempt observer sees every classified attempt", func(t *testing.T) {
		primary := &testutil.FakeEngine{
			EngineName:    "vlm",
			ExtractResult: &engine.Result{Success: false, Error: "bad scan", Engine: "vlm"},
		}
		secondary := &testutil.FakeEngine{
			EngineName:    "tesseract",
			ExtractResult: &engine.Result{Text: "ok", Engine: "tesseract", Success: true},
		}
		orch := newTestOrchestrator(primary, secondary, slow)

		type observed struct {
			engine  string
			outcome engine.Outcome
		}
		var seen []observed
		orch.SetAttemptObserver(func(name string, outcome engine.Outcome, _ time.Duration) {
			seen = append(seen, observed{name, outcome})
		})

		orch.Process(context.Background(), engine.Request{Mode: engine.SelectAuto}, nil)

		require.Len(t, seen, 2)
		assert.Equal(t, observed{"vlm", engine.OutcomeSoftFailure}, seen[0])
		assert.Equal(t, observed{"tesseract", engine.OutcomeSuccess}, seen[1])
	})

	t.Run("progress milestones reach the sink", func(t *testing.T) {
		primary := &testutil.FakeEngine{
			EngineName:    "vlm",
			Milestones:    []int{0, 20, 40, 80, 100},
			ExtractResult: &engine.Result{Text: "ok", Engine: "vlm", Success: true},
		}
		secondary := &testutil.FakeEngine{EngineName: "tesseract"}
		orch := newTestOrchestrator(primary, secondary, slow)

		sink := &testutil.CollectSink{}
		orch.Process(context.Background(), engine.Request{Mode: engine.SelectAuto}, sink)

		assert.Equal(t, []int{0, 20, 40, 80, 100}, sink.Percents())
	})

	t.Run("cascade emits one restarting progress sequence per attempt", func(t *testing.T) {
		primary := &testutil.FakeEngine{
			EngineName:   "vlm",
			Milestones:   []int{0, 30, 60},
			ExtractDelay: 200 * time.Millisecond,
		}
		secondary := &testutil.FakeEngine{
			EngineName:    "tesseract",
			Milestones:    []int{0, 20, 50, 100},
			ExtractResult: &engine.Result{Text: "rescued", Engine: "tesseract", Success: true},
		}
		orch := newTestOrchestrator(primary, secondary, map[string]time.Duration{
			"vlm": 30 * time.Millisecond, "tesseract": time.Second,
		})

		sink := &testutil.CollectSink{}
		released := make(chan struct{})
		res := orch.Process(context.Background(), engine.Request{
			Mode:    engine.SelectAuto,
			Release: func() { close(released) },
		}, sink)

		require.True(t, res.Success)

		// Wait out the orphaned primary so the recorded sequence is final.
		select {
		case <-released:
		case <-time.After(2 * time.Second):
			t.Fatal("orphaned attempt never finished")
		}

		assert.Equal(t, []int{0, 30, 60, 0, 20, 50, 100}, sink.Percents(),
			"each attempt restarts its own non-decreasing sequence")
	})

	t.Run("orphaned attempt is detached from the caller's context", func(t *testing.T) {
		primary := &testutil.FakeEngine{
			EngineName:   "vlm",
			ExtractDelay: 150 * time.Millisecond,
		}
		secondary := &testutil.FakeEngine{
			EngineName:    "tesseract",
			ExtractResult: &engine.Result{Text: "rescued", Engine: "tesseract", Success: true},
		}
		orch := newTestOrchestrator(primary, secondary, map[string]time.Duration{
			"vlm": 20 * time.Millisecond, "tesseract": time.Second,
		})

		ctx, cancel := context.WithCancel(context.Background())
		released := make(chan struct{})
		res := orch.Process(ctx, engine.Request{
			Mode:    engine.SelectAuto,
			Release: func() { close(released) },
		}, nil)
		// The caller's request context dies as soon as the cascade returns,
		// the way a pooled HTTP request context is recycled.
		cancel()

		require.True(t, res.Success)
		assert.Equal(t, "tesseract", res.Engine)

		select {
		case <-released:
		case <-time.After(2 * time.Second):
			t.Fatal("orphaned attempt never finished")
		}

		captured := primary.LastContext()
		require.NotNil(t, captured)
		assert.NoError(t, captured.Err(), "orphan must not observe the caller's cancellation")
	})

	t.Run("release waits for the orphaned attempt to finish", func(t *testing.T) {
		primary := &testutil.FakeEngine{
			EngineName:   "vlm",
			ExtractDelay: 150 * time.Millisecond,
		}
		secondary := &testutil.FakeEngine{
			EngineName:    "tesseract",
			ExtractResult: &engine.Result{Text: "rescued", Engine: "tesseract", Success: true},
		}
		orch := newTestOrchestrator(primary, secondary, map[string]time.Duration{
			"vlm": 20 * time.Millisecond, "tesseract": time.Second,
		})

		released := make(chan struct{})
		res := orch.Process(context.Background(), engine.Request{
			Mode:    engine.SelectAuto,
			Release: func() { close(released) },
		}, nil)
		require.True(t, res.Success)

		select {
		case <-released:
			t.Fatal("input released while an attempt was still running")
		default:
		}

		select {
		case <-released:
		case <-time.After(2 * time.Second):
			t.Fatal("release never fired")
		}
	})

	t.Run("release fires promptly when no attempt is orphaned", func(t *testing.T) {
		primary := &testutil.FakeEngine{
			EngineName:    "vlm",
			ExtractResult: &engine.Result{Text: "ok", Engine: "vlm", Success: true},
		}
		secondary := &testutil.FakeEngine{EngineName: "tesseract"}
		orch := newTestOrchestrator(primary, secondary, slow)

		released := make(chan struct{})
		orch.Process(context.Background(), engine.Request{
			Mode:    engine.SelectAuto,
			Release: func() { close(released) },
		}, nil)

		select {
		case <-released:
		case <-time.After(time.Second):
			t.Fatal("release never fired")
		}
	})
}
