// Package automation runs step lists against a browser page over CDP.
package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lucsky/cuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drksbr/browserrelay/internal/humanize"
	"github.com/drksbr/browserrelay/internal/logger"
	"github.com/drksbr/browserrelay/internal/metrics"
)

// ErrEngineClosed is returned by Spawn once Close has been called.
var ErrEngineClosed = errors.New("automation: engine closed")

const (
	defaultSettle       = 2 * time.Second
	defaultPollInterval = 500 * time.Millisecond
	tracerName          = "github.com/drksbr/browserrelay/internal/automation"
)

// Commander is the part of cdp.Client the engine needs.
type Commander interface {
	Connect(ctx context.Context, sessionID, wsURL string) error
	SendCommand(ctx context.Context, sessionID, method string, params any) (json.RawMessage, error)
	Disconnect(sessionID string)
}

// PageResolver turns a debug port or endpoint into a page WebSocket URL.
type PageResolver interface {
	Resolve(ctx context.Context, debugPort int, wsEndpoint string) (string, error)
}

type Options struct {
	Browser  Commander
	Resolver PageResolver
	// Store defaults to an empty store without a log hook.
	Store     *Store
	Humanizer *humanize.Humanizer
	// IDMode is "uuid" (default) or "cuid".
	IDMode           string
	NavigationSettle time.Duration
	PollInterval     time.Duration
	Metrics          *metrics.Collectors
	Logger           *slog.Logger
	Tracer           trace.Tracer
}

// TaskRequest describes one task to spawn.
type TaskRequest struct {
	ProfileID  string
	Steps      []Step
	Variables  Variables
	DebugPort  int
	WSEndpoint string
}

type Engine struct {
	browser  Commander
	resolver PageResolver
	store    *Store
	human    *humanize.Humanizer
	idGen    func() string
	settle   time.Duration
	poll     time.Duration
	metrics  *metrics.Collectors
	logger   *slog.Logger
	tracer   trace.Tracer

	// mu orders Spawn's wg.Add against Close's wg.Wait.
	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) (*Engine, error) {
	if opts.Browser == nil {
		return nil, errors.New("automation: browser is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("automation: resolver is required")
	}
	var idGen func() string
	switch strings.ToLower(opts.IDMode) {
	case "", "uuid":
		idGen = func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:12] }
	case "cuid":
		idGen = cuid.New
	default:
		return nil, fmt.Errorf("automation: unknown id mode %q", opts.IDMode)
	}

	e := &Engine{
		browser:  opts.Browser,
		resolver: opts.Resolver,
		store:    opts.Store,
		human:    opts.Humanizer,
		idGen:    idGen,
		settle:   opts.NavigationSettle,
		poll:     opts.PollInterval,
		metrics:  opts.Metrics,
		logger:   logger.OrDiscard(opts.Logger).With("component", "automation"),
		tracer:   opts.Tracer,
	}
	if e.store == nil {
		e.store = NewStore(nil)
	}
	if e.human == nil {
		e.human = humanize.NewRandom()
	}
	if e.settle <= 0 {
		e.settle = defaultSettle
	}
	if e.poll <= 0 {
		e.poll = defaultPollInterval
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e, nil
}

func (e *Engine) Store() *Store {
	return e.store
}

// Spawn registers a running task and executes it in the background.
func (e *Engine) Spawn(req TaskRequest) (string, error) {
	if len(req.Steps) == 0 {
		return "", errNoSteps
	}
	for i, step := range req.Steps {
		if step.Action == nil {
			return "", fmt.Errorf("step %d: missing action", i+1)
		}
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrEngineClosed
	}
	id := "task_" + e.idGen()
	e.store.create(id, req.ProfileID, len(req.Steps),
		fmt.Sprintf("Task started: %d steps on profile '%s'", len(req.Steps), req.ProfileID))
	e.wg.Add(1)
	e.mu.Unlock()

	e.metrics.TaskStarted()
	e.logger.Info("task spawned", "task", id, "profile", req.ProfileID, "steps", len(req.Steps))
	go func() {
		defer e.wg.Done()
		e.run(e.ctx, id, req)
	}()
	return id, nil
}

func (e *Engine) Get(id string) (Task, error) {
	return e.store.Get(id)
}

func (e *Engine) List(status Status) []Task {
	return e.store.List(status)
}

func (e *Engine) Cancel(id string) error {
	if err := e.store.Cancel(id); err != nil {
		return err
	}
	e.logger.Info("task cancellation requested", "task", id)
	return nil
}

func (e *Engine) Wait(ctx context.Context, id string) (Task, error) {
	return e.store.Wait(ctx, id)
}

// Close aborts in-flight steps and waits for every task goroutine to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context, id string, req TaskRequest) {
	log := e.logger.With("task", id, "profile", req.ProfileID)
	ctx, span := e.tracer.Start(ctx, "automation.task", trace.WithAttributes(
		attribute.String("task.id", id),
		attribute.String("task.profile", req.ProfileID),
		attribute.Int("task.steps", len(req.Steps)),
	))
	defer span.End()
	if !span.SpanContext().IsValid() {
		ctx, _, _ = logger.WithTraceAndSpan(ctx)
	}

	fail := func(step int, msg string) {
		e.store.log(id, step, LevelError, msg)
		e.complete(id, StatusFailed, -1, msg)
		span.SetStatus(codes.Error, msg)
		log.WarnContext(ctx, "task failed", "error", msg)
	}

	wsURL, err := e.resolver.Resolve(ctx, req.DebugPort, req.WSEndpoint)
	if err != nil {
		fail(0, fmt.Sprintf("Failed to resolve CDP URL: %v", err))
		return
	}

	sessionID := "api_" + id
	if err := e.browser.Connect(ctx, sessionID, wsURL); err != nil {
		fail(0, fmt.Sprintf("CDP connect failed: %v", err))
		return
	}
	defer e.browser.Disconnect(sessionID)
	e.store.log(id, 0, LevelInfo, "CDP connected: "+wsURL)

	p := &page{
		browser: e.browser,
		session: sessionID,
		human:   e.human,
		poll:    e.poll,
		settle:  e.settle,
	}
	current := 0
	p.warn = func(msg string) {
		e.store.log(id, current, LevelWarn, msg)
		log.WarnContext(ctx, msg, "step", current)
	}

	if err := p.injectStealth(ctx); err != nil {
		log.DebugContext(ctx, "stealth patch not applied", "error", err)
	}

	for i, step := range req.Steps {
		if e.store.cancelRequested(id) {
			e.store.log(id, i, LevelWarn, fmt.Sprintf("Task cancelled before step %d", i+1))
			e.complete(id, StatusCancelled, i, "")
			log.InfoContext(ctx, "task cancelled", "step", i)
			return
		}

		current = i + 1
		e.store.advance(id, current)
		e.store.log(id, current, LevelInfo, fmt.Sprintf("Step %d: %s", current, step.Label()))

		if err := e.runStep(ctx, p, current, step.Action.substitute(req.Variables)); err != nil {
			fail(current, fmt.Sprintf("Step %d failed: %v", current, err))
			return
		}

		if step.HumanDelay != nil {
			if err := e.human.Sleep(ctx, e.human.Delay(step.HumanDelay.Min, step.HumanDelay.Max)); err != nil {
				fail(current, fmt.Sprintf("Step %d failed: %v", current, err))
				return
			}
		}
	}

	e.store.log(id, len(req.Steps), LevelInfo, "Task completed successfully")
	e.complete(id, StatusCompleted, len(req.Steps), "")
	log.InfoContext(ctx, "task completed")
}

func (e *Engine) runStep(ctx context.Context, p *page, n int, action Action) error {
	ctx, span := e.tracer.Start(ctx, "automation.step", trace.WithAttributes(
		attribute.Int("step.index", n),
		attribute.String("step.action", string(action.Kind())),
	))
	defer span.End()

	err := p.run(ctx, action)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.metrics.StepExecuted(string(action.Kind()), outcome)
	return err
}

func (e *Engine) complete(id string, status Status, step int, errMsg string) {
	if e.store.finish(id, status, step, errMsg) {
		e.metrics.TaskFinished(string(status))
	}
}
