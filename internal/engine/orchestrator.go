package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/wordlens/wordlens/internal/observability"
)

// attempt records one engine invocation for observability and for the
// combined-failure synthesis.
type attempt struct {
	engine   string
	outcome  Outcome
	errText  string
	duration time.Duration
}

// AttemptObserver is notified after each classified engine attempt. Used to
// record metrics without coupling the orchestrator to a metrics backend.
type AttemptObserver func(engineName string, outcome Outcome, duration time.Duration)

// Orchestrator drives the fallback cascade: it derives an ordered attempt
// list from the selection mode, invokes each engine through the
// deadline-bounded invoker, classifies the outcome and either returns the
// first success or synthesizes a combined failure.
type Orchestrator struct {
	registry   *Registry
	primary    string
	secondary  string
	deadlines  map[string]time.Duration
	observer   AttemptObserver
	onFallback func()
}

// OrchestratorConfig wires an orchestrator.
type OrchestratorConfig struct {
	Primary   string
	Secondary string
	// Deadlines holds the per-engine wall-clock deadline, keyed by engine ID.
	Deadlines map[string]time.Duration
}

// NewOrchestrator creates a fallback orchestrator over the given registry.
func NewOrchestrator(registry *Registry, cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		deadlines: cfg.Deadlines,
	}
}

// SetAttemptObserver registers a callback invoked after every classified
// attempt.
func (o *Orchestrator) SetAttemptObserver(fn AttemptObserver) {
	o.observer = fn
}

// SetFallbackObserver registers a callback invoked each time the cascade
// moves past a failed engine to the next one.
func (o *Orchestrator) SetFallbackObserver(fn func()) {
	o.onFallback = fn
}

// selectEngines derives the ordered attempt list from the selection mode.
// Automatic mode always tries the primary before the secondary.
func (o *Orchestrator) selectEngines(mode SelectionMode) []string {
	switch mode {
	case SelectPrimary:
		return []string{o.primary}
	case SelectSecondary:
		return []string{o.secondary}
	default:
		return []string{o.primary, o.secondary}
	}
}

// deadlineFor returns the configured deadline for an engine.
func (o *Orchestrator) deadlineFor(name string) time.Duration {
	if d, ok := o.deadlines[name]; ok && d > 0 {
		return d
	}
	return 30 * time.Second
}

// Process runs the cascade for one request and always returns a well-formed
// result: the first successful engine's result unchanged, or a synthesized
// combined failure when every attempted engine fails. Engine failures never
// propagate as errors to the caller.
func (o *Orchestrator) Process(ctx context.Context, req Request, sink ProgressSink) *Result {
	if sink == nil {
		sink = NopSink
	}

	engines := o.selectEngines(req.Mode)
	attempts := make([]attempt, 0, len(engines))
	finished := make([]<-chan struct{}, 0, len(engines))
	defer func() { releaseInput(req, finished) }()

	for i, name := range engines {
		deadline := o.deadlineFor(name)
		start := time.Now()

		attemptCtx, span := observability.StartEngineSpan(ctx, name, deadline)

		// A timed-out attempt keeps running after this cascade - and after
		// the caller's request context has been recycled by the HTTP server
		// pool - so the work goroutine gets a context detached from the
		// caller, carrying only the attempt span.
		workCtx := trace.ContextWithSpan(context.Background(), span)

		log.Info().
			Str("engine", name).
			Str("mode", string(req.Mode)).
			Dur("deadline", deadline).
			Int("attempt", i+1).
			Msg("Invoking OCR engine")

		workDone := make(chan struct{})
		finished = append(finished, workDone)

		// The extraction lock is taken inside the deadline-bounded work, so
		// waiting behind a busy (or orphaned) invocation counts against the
		// deadline instead of blocking the caller indefinitely.
		res, err := RunWithDeadline(deadline, func() (*Result, error) {
			defer close(workDone)
			return o.registry.WithEngine(workCtx, name, func(e Engine) (*Result, error) {
				return e.Extract(workCtx, req.ImagePath, req.Language, sink)
			})
		})

		elapsed := time.Since(start)
		outcome := Classify(res, err)
		observability.SetAttemptResult(attemptCtx, outcome.String(), elapsed, err)
		span.End()
		if o.observer != nil {
			o.observer(name, outcome, elapsed)
		}

		if outcome == OutcomeSuccess {
			log.Info().
				Str("engine", name).
				Dur("elapsed", elapsed).
				Int("word_count", res.WordCount).
				Msg("OCR attempt succeeded")
			return res
		}

		errText := attemptError(res, err, deadline)
		attempts = append(attempts, attempt{
			engine:   name,
			outcome:  outcome,
			errText:  errText,
			duration: elapsed,
		})

		log.Warn().
			Str("engine", name).
			Str("outcome", outcome.String()).
			Str("error", errText).
			Dur("elapsed", elapsed).
			Bool("will_fallback", i+1 < len(engines)).
			Msg("OCR attempt failed")

		if i+1 < len(engines) && o.onFallback != nil {
			o.onFallback()
		}
	}

	return o.combinedFailure(req, attempts)
}

// releaseInput fires req.Release once every started attempt, including
// orphaned ones, has actually finished with the input file.
func releaseInput(req Request, finished []<-chan struct{}) {
	if req.Release == nil {
		return
	}
	go func() {
		for _, done := range finished {
			<-done
		}
		req.Release()
	}()
}

// attemptError extracts the failure text for one attempt.
func attemptError(res *Result, err error, deadline time.Duration) string {
	switch {
	case errors.Is(err, ErrDeadlineExceeded):
		return fmt.Sprintf("extraction timed out after %s", deadline)
	case err != nil:
		return err.Error()
	case res != nil && res.Error != "":
		return res.Error
	default:
		return "engine reported failure without detail"
	}
}

// combinedFailure synthesizes the terminal result when every attempted
// engine failed. The error text names every attempted engine and its
// individual failure; timeout and fallback flags survive from the attempts.
func (o *Orchestrator) combinedFailure(req Request, attempts []attempt) *Result {
	parts := make([]string, 0, len(attempts))
	timedOut := false
	fallbackRecommended := false
	var total time.Duration

	for i, a := range attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.engine, a.errText))
		total += a.duration
		if a.outcome == OutcomeTimeout {
			timedOut = true
		}
		// The primary's failure is what made fallback worthwhile.
		if i == 0 && len(attempts) > 1 {
			fallbackRecommended = true
		}
	}

	errText := "all OCR engines failed: " + strings.Join(parts, "; ")
	if len(attempts) == 0 {
		errText = "no OCR engine attempted"
	}

	return &Result{
		Text:                "",
		Confidence:          0,
		Language:            req.Language,
		Engine:              "none",
		WordCount:           0,
		ProcessingTime:      total.Seconds(),
		Success:             false,
		Error:               errText,
		TimeoutOccurred:     timedOut,
		FallbackRecommended: fallbackRecommended,
	}
}
