package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mbouombouo/studiostay-backend/internal/gateway"
	"github.com/mbouombouo/studiostay-backend/internal/reconciler"
	"github.com/mbouombouo/studiostay-backend/internal/statuscache"
	"github.com/mbouombouo/studiostay-backend/pkg/config"
	"github.com/mbouombouo/studiostay-backend/pkg/enums"
	pkgerrors "github.com/mbouombouo/studiostay-backend/pkg/errors"
	"github.com/mbouombouo/studiostay-backend/pkg/logger"
	"github.com/mbouombouo/studiostay-backend/pkg/metrics"
)

type statusReader interface {
	Get(ctx context.Context, reference string) (*statuscache.Entry, error)
	PendingReferences(ctx context.Context) ([]*statuscache.Entry, error)
}

type adapterResolver interface {
	For(method enums.PaymentMethod) (gateway.Adapter, error)
}

type eventHandler interface {
	HandlePaymentEvent(ctx context.Context, evt reconciler.PaymentEvent) error
}

// Poller watches pending payments and feeds terminal observations to the
// reconciler. Each reference gets its own cancellable task; the horizon is
// the backstop that guarantees no reservation stays pending forever.
type Poller struct {
	cfg      config.PollerConfig
	cache    statusReader
	adapters adapterResolver
	handler  eventHandler
	metrics  *metrics.PaymentFlowMetrics
	logger   *logger.Logger

	mu      sync.Mutex
	root    context.Context
	cancel  context.CancelFunc
	started bool
	tasks   map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// Params bundles the poller dependencies.
type Params struct {
	Cfg      config.PollerConfig
	Cache    statusReader
	Adapters adapterResolver
	Handler  eventHandler
	Metrics  *metrics.PaymentFlowMetrics
	Logger   *logger.Logger
}

// New validates the params and builds the poller. The handler may be bound
// later with Bind; Start must be called before Schedule has any effect.
func New(params Params) (*Poller, error) {
	if params.Cache == nil {
		return nil, fmt.Errorf("status cache required")
	}
	if params.Adapters == nil {
		return nil, fmt.Errorf("adapter registry required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Cfg.Interval <= 0 {
		params.Cfg.Interval = 5 * time.Second
	}
	if params.Cfg.Horizon <= 0 {
		params.Cfg.Horizon = 5 * time.Minute
	}
	return &Poller{
		cfg:      params.Cfg,
		cache:    params.Cache,
		adapters: params.Adapters,
		handler:  params.Handler,
		metrics:  params.Metrics,
		logger:   params.Logger,
		tasks:    make(map[string]context.CancelFunc),
	}, nil
}

// Bind attaches the event handler. The poller schedules timers before the
// reconciler exists, so the handler is wired after construction.
func (p *Poller) Bind(handler eventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

// Start anchors spawned tasks to the given context and resumes polling for
// cache entries that were pending when the process last stopped.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("poller already started")
	}
	if p.handler == nil {
		p.mu.Unlock()
		return fmt.Errorf("event handler not bound")
	}
	p.root, p.cancel = context.WithCancel(ctx)
	p.started = true
	p.mu.Unlock()

	return p.resume(p.root)
}

// Shutdown cancels every task and waits for them to drain.
func (p *Poller) Shutdown() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Schedule starts a poll task for the reference. Scheduling an already
// tracked reference is a no-op.
func (p *Poller) Schedule(reference string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	if _, ok := p.tasks[reference]; ok {
		return
	}
	taskCtx, cancel := context.WithCancel(p.root)
	p.tasks[reference] = cancel
	p.wg.Add(1)
	go p.run(taskCtx, reference)
}

// Cancel stops the poll task for the reference, typically because a webhook
// settled the payment first.
func (p *Poller) Cancel(reference string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.tasks[reference]; ok {
		cancel()
		delete(p.tasks, reference)
	}
}

// resume re-schedules pending entries after a restart. Entries already past
// the horizon are timed out immediately instead of being polled again.
func (p *Poller) resume(ctx context.Context) error {
	pending, err := p.cache.PendingReferences(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, entry := range pending {
		if entry.Age(now) >= p.cfg.Horizon {
			p.timeOut(ctx, entry.Reference)
			continue
		}
		p.Schedule(entry.Reference)
	}
	return nil
}

func (p *Poller) run(ctx context.Context, reference string) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		delete(p.tasks, reference)
		p.mu.Unlock()
	}()
	ctx = p.logger.WithReference(ctx, reference)

	entry, err := p.cache.Get(ctx, reference)
	if err != nil {
		if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			p.logger.Error(ctx, "load entry for polling", err)
		}
		return
	}
	if entry.Status.IsTerminal() {
		return
	}

	adapter, err := p.adapters.For(entry.Intent.Method)
	if err != nil {
		p.logger.Error(ctx, "resolve adapter for polling", err)
		return
	}

	deadline := entry.CreatedAt.Add(p.cfg.Horizon)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			p.timeOut(ctx, reference)
			return
		}

		// a webhook may have settled the payment between ticks
		current, err := p.cache.Get(ctx, reference)
		if err == nil && current.Status.IsTerminal() {
			return
		}

		start := time.Now()
		status, message, err := adapter.QueryStatus(ctx, reference)
		p.metrics.ObservePollDuration(entry.Intent.Method.String(), time.Since(start))
		if err != nil {
			p.metrics.IncPollTick("error")
			p.logger.Warn(p.logger.WithField(ctx, "query_error", err.Error()), "status poll failed")
			continue
		}

		if !status.IsTerminal() {
			p.metrics.IncPollTick("pending")
			continue
		}

		p.metrics.IncPollTick(status.String())
		evt := reconciler.PaymentEvent{
			Reference:   reference,
			Status:      status,
			Message:     message,
			AmountCents: entry.AmountCents,
			Channel:     entry.Channel,
		}
		if err := p.handler.HandlePaymentEvent(ctx, evt); err != nil {
			p.logger.Error(ctx, "reconcile polled status", err)
		}
		return
	}
}

// timeOut synthesizes the TIMEOUT terminal status and runs the failure branch.
func (p *Poller) timeOut(ctx context.Context, reference string) {
	p.metrics.IncPollTick("timeout")
	evt := reconciler.PaymentEvent{
		Reference: reference,
		Status:    enums.GatewayStatusTimeout,
		Message:   "payment not settled within the polling horizon",
	}
	if err := p.handler.HandlePaymentEvent(ctx, evt); err != nil {
		p.logger.Error(p.logger.WithReference(ctx, reference), "reconcile timed out payment", err)
	}
}
