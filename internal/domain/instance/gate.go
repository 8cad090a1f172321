package instance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/logging"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
)

// Gated operation results, as recorded in metrics
const (
	ResultOK         = "ok"
	ResultDenied     = "denied"
	ResultUndeclared = "undeclared"
	ResultCancelled  = "cancelled"
	ResultOpen       = "circuit_open"
	ResultError      = "error"
)

// Notification is a transient, dismissible message about a failed gated
// operation
type Notification struct {
	Widget      types.WidgetID
	Scope       types.Scope
	Message     string
	Err         error
	Dismissible bool
}

// Notifier surfaces notifications to the user. Calls arrive on the
// dispatcher.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(n Notification)

// Notify calls f
func (f NotifierFunc) Notify(n Notification) { f(n) }

// GateConfig configures a Gate
type GateConfig struct {
	// GlobalScopes are scopes whose process-wide grant also counts
	GlobalScopes []types.Scope
	// MaxFailures consecutive network failures open a widget's breaker
	MaxFailures uint32
	// OpenTimeout is how long a breaker stays open
	OpenTimeout time.Duration
	// NotifyInterval is the minimum spacing of notifications per widget
	NotifyInterval time.Duration
	NotifyBurst    int

	Notifier Notifier
	Executor Executor
	Metrics  *monitoring.Metrics
	Logger   *zap.Logger
	// Now overrides the breaker clock in tests
	Now func() time.Time
}

// Gate runs capability-gated operations on behalf of widget instances.
// A call proceeds only if the widget declared the scope and holds the
// grant. Network widgets run behind a per-widget circuit breaker, and
// their failures raise a rate-limited notification instead of an error
// dialog.
type Gate struct {
	policy   policy
	breakers *resilience.Group
	notifier Notifier
	exec     Executor
	metrics  *monitoring.Metrics
	log      *zap.Logger
	interval time.Duration
	burst    int

	mu       sync.Mutex
	limiters map[types.WidgetID]*rate.Limiter
}

// NewGate creates a gate over the given grants
func NewGate(perms Checker, cfg GateConfig) *Gate {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.NotifyBurst <= 0 {
		cfg.NotifyBurst = 1
	}
	if cfg.Executor == nil {
		cfg.Executor = inline{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	log := cfg.Logger.Named("gate")

	maxFailures := cfg.MaxFailures
	settings := resilience.Settings{
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Info("network breaker changed state",
				zap.String("widget", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
		Now: cfg.Now,
	}

	return &Gate{
		policy:   newPolicy(perms, cfg.GlobalScopes),
		breakers: resilience.NewGroup(settings),
		notifier: cfg.Notifier,
		exec:     cfg.Executor,
		metrics:  cfg.Metrics,
		log:      log,
		interval: cfg.NotifyInterval,
		burst:    cfg.NotifyBurst,
		limiters: make(map[types.WidgetID]*rate.Limiter),
	}
}

// countsAsSuccess keeps denials and cancellations out of breaker failures
func countsAsSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, types.ErrPermissionDenied) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Allowed reports whether inst may use scope right now
func (g *Gate) Allowed(inst *Instance, scope types.Scope) bool {
	meta := inst.Metadata()
	return meta.HasScope(scope) && g.policy.allowed(meta.ID, scope)
}

// Run executes fn as a gated operation of inst on scope.
//
// It returns ErrUndeclaredScope if the widget never declared scope, and a
// soft ErrPermissionDenied if the grant is missing; fn is not called in
// either case. Otherwise fn's error is returned as is.
func (g *Gate) Run(ctx context.Context, inst *Instance, scope types.Scope, fn func(ctx context.Context) error) error {
	meta := inst.Metadata()
	timer := monitoring.NewTimer(g.metrics, string(scope))

	if !meta.HasScope(scope) {
		timer.Stop(ResultUndeclared)
		return fmt.Errorf("%w: %s does not declare %s", types.ErrUndeclaredScope, meta.Type, scope)
	}
	if !g.policy.allowed(meta.ID, scope) {
		timer.Stop(ResultDenied)
		return fmt.Errorf("%w: %s for %s", types.ErrPermissionDenied, scope, meta.Type)
	}

	var err error
	if meta.RequiresNetwork {
		err = g.breakers.Get(meta.ID.String()).Run(ctx, fn)
	} else {
		err = fn(ctx)
	}

	switch {
	case err == nil:
		timer.Stop(ResultOK)
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		timer.Stop(ResultCancelled)
		return err
	case errors.Is(err, types.ErrPermissionDenied):
		timer.Stop(ResultDenied)
		return err
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		timer.Stop(ResultOpen)
	default:
		timer.Stop(ResultError)
	}

	if meta.RequiresNetwork {
		g.notify(meta, scope, err)
	}
	return err
}

// BreakerState returns the network breaker state of a widget
func (g *Gate) BreakerState(widget types.WidgetID) resilience.State {
	return g.breakers.Get(widget.String()).State()
}

func (g *Gate) notify(meta types.WidgetMetadata, scope types.Scope, err error) {
	if g.notifier == nil {
		return
	}
	if !g.limiter(meta.ID).Allow() {
		g.log.Debug("notification suppressed", logging.Widget(meta.ID), logging.Scope(scope))
		return
	}

	n := Notification{
		Widget:      meta.ID,
		Scope:       scope,
		Message:     fmt.Sprintf("%s could not reach the network", meta.Type),
		Err:         err,
		Dismissible: true,
	}
	g.exec.Post(func(context.Context) { g.notifier.Notify(n) })
}

func (g *Gate) limiter(widget types.WidgetID) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.limiters[widget]
	if !ok {
		every := rate.Inf
		if g.interval > 0 {
			every = rate.Every(g.interval)
		}
		l = rate.NewLimiter(every, g.burst)
		g.limiters[widget] = l
	}
	return l
}
