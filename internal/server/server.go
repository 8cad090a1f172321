package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskwidgets/internal/domain/instance"
	"github.com/GriffinCanCode/deskwidgets/internal/domain/metadata"
	"github.com/GriffinCanCode/deskwidgets/internal/domain/permission"
	"github.com/GriffinCanCode/deskwidgets/internal/domain/registry"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/config"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/dispatch"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/logging"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/singleinstance"
	"github.com/GriffinCanCode/deskwidgets/internal/providers/settings"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/paths"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
	"github.com/GriffinCanCode/deskwidgets/internal/widgets"
)

const shutdownTimeout = 5 * time.Second

// Option customizes a Host. Options replace OS-backed collaborators,
// mostly for tests.
type Option func(*Host)

// WithLogger uses log instead of building one from configuration
func WithLogger(log *zap.Logger) Option {
	return func(h *Host) { h.log = log }
}

// WithCoordination replaces the lock file and command channel
func WithCoordination(lock singleinstance.Lock, channel singleinstance.Channel) Option {
	return func(h *Host) {
		h.lock = lock
		h.channel = channel
	}
}

// WithSettings uses s instead of the SQLite settings database
func WithSettings(s settings.Store) Option {
	return func(h *Host) { h.settings = s }
}

// WithPresenter sets the window surface
func WithPresenter(p instance.Presenter) Option {
	return func(h *Host) { h.presenter = p }
}

// WithConsent sets the consent surface asked on RequestAccess
func WithConsent(c permission.Consent) Option {
	return func(h *Host) { h.consent = c }
}

// WithNotifier sets the receiver of transient gate notifications
func WithNotifier(n instance.Notifier) Option {
	return func(h *Host) { h.notifier = n }
}

// Host is the context object of one desk widget process
type Host struct {
	cfg    *config.Config
	layout paths.Layout
	log    *zap.Logger

	lock      singleinstance.Lock
	channel   singleinstance.Channel
	settings  settings.Store
	presenter instance.Presenter
	consent   permission.Consent
	notifier  instance.Notifier

	reg         *prometheus.Registry
	metrics     *monitoring.Metrics
	loop        *dispatch.Loop
	coordinator *singleinstance.Coordinator
	closer      io.Closer
	registry    *registry.Registry
	pins        *instance.Pins
	permissions *permission.Manager
	instances   *instance.Manager
	gate        *instance.Gate
	diag        *http.Server
	diagAddr    net.Addr

	stopLoop  context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// New creates a host. Nothing is opened until Start.
func New(cfg *config.Config, opts ...Option) *Host {
	if cfg == nil {
		cfg = config.Default()
	}
	h := &Host{
		cfg:    cfg,
		layout: paths.New(cfg.Host.DataDir, cfg.Host.Instance),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		log, err := logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			log = logging.NewDefault()
		}
		h.log = log
	}

	h.reg = prometheus.NewRegistry()
	h.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	h.metrics = monitoring.NewMetrics(h.reg)
	h.loop = dispatch.New(h.log)
	return h
}

// Start runs the single-instance gate. The owning process builds every
// component, restores persisted pins, runs args as its first command and
// returns true. Any other process forwards args to the owner and returns
// false.
func (h *Host) Start(ctx context.Context, args []string) (bool, error) {
	if err := h.layout.Ensure(); err != nil {
		return false, err
	}
	if h.lock == nil {
		h.lock = singleinstance.NewLock(h.layout.LockPath())
	}
	if h.channel == nil {
		h.channel = singleinstance.NewChannel(h.layout.ChannelAddress(), h.log)
	}

	h.coordinator = singleinstance.New(h.lock, h.channel,
		singleinstance.WithDispatcher(h.loop),
		singleinstance.WithMetrics(h.metrics),
		singleinstance.WithLogger(h.log))

	// Commands arriving from here on queue on the loop, which only starts
	// once the managers exist.
	owner, err := h.coordinator.Start(ctx, h.handleCommand)
	if err != nil {
		return false, err
	}
	if !owner {
		// Forwarding is fire-and-forget, so a send failure is only logged.
		if err := h.coordinator.Forward(ctx, args); err != nil {
			h.log.Warn("could not forward command to running instance",
				zap.Strings("args", args), zap.Error(err))
			return false, nil
		}
		h.log.Info("forwarded command to running instance", zap.Strings("args", args))
		return false, nil
	}

	if err := h.build(); err != nil {
		return true, errors.Join(err, h.Close())
	}

	loopCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	h.stopLoop = stop
	go func() {
		if err := h.loop.Run(loopCtx); err != nil {
			h.log.Error("dispatch loop", zap.Error(err))
		}
	}()

	report := h.instances.ReactivatePinned(ctx)
	if report.Err != nil {
		h.log.Warn("reactivation stopped early", zap.Error(report.Err))
	}

	if command := strings.Join(args, " "); command != "" {
		h.loop.Post(func(lctx context.Context) { h.handleCommand(lctx, command) })
	}

	if h.cfg.Diagnostics.Enabled {
		if err := h.startDiagnostics(); err != nil {
			return true, errors.Join(err, h.Close())
		}
	}
	return true, nil
}

func (h *Host) build() error {
	if h.settings == nil {
		db, err := settings.OpenSQLite(h.layout.SettingsPath())
		if err != nil {
			return fmt.Errorf("open settings: %w", err)
		}
		h.closer = db
		h.settings = settings.NewCached(db)
	}
	h.pins = instance.NewPins(h.settings)

	descriptors, err := widgets.Descriptors()
	if err != nil {
		return fmt.Errorf("load widget catalogue: %w", err)
	}
	extractor := metadata.NewExtractor(h.log, widgets.Localizer, h.pins)
	h.registry = registry.Build(descriptors, extractor, registry.Options{
		IncludeDeveloper: h.cfg.Host.Developer,
		Logger:           h.log,
	})
	h.registry.LogSummary(h.log)
	h.metrics.SetWidgetsRegistered(h.registry.Len())
	for _, r := range h.registry.Rejections() {
		h.metrics.IncWidgetsRejected(r.Reason)
	}

	consent := h.consent
	if consent == nil {
		consent = permission.DenyAll(h.log)
	}
	if grants := h.autoGrant(); len(grants) > 0 {
		h.log.Warn("consent prompts auto-granted", zap.Int("widgets", len(grants)))
		consent = permission.AutoGrant(grants, consent)
	}
	h.permissions = permission.NewManager(
		permission.NewStore(h.settings, h.log),
		consent,
		permission.WithLevels(h.registry),
		permission.WithDispatcher(h.loop),
		permission.WithMetrics(h.metrics),
		permission.WithLogger(h.log),
	)

	presenter := h.presenter
	if presenter == nil {
		presenter = instance.LogPresenter{Log: h.log}
	}
	global := h.globalScopes()
	h.instances = instance.NewManager(h.registry, h.permissions, h.pins,
		instance.WithPresenter(presenter),
		instance.WithExecutor(h.loop),
		instance.WithGlobalScopes(global),
		instance.WithDefaultSize(types.WindowSize{
			Width:  h.cfg.Widgets.DefaultWidth,
			Height: h.cfg.Widgets.DefaultHeight,
		}),
		instance.WithMetrics(h.metrics),
		instance.WithLogger(h.log),
	)

	notifier := h.notifier
	if notifier == nil {
		notifier = logNotifier(h.log)
	}
	h.gate = instance.NewGate(h.permissions, instance.GateConfig{
		GlobalScopes:   global,
		MaxFailures:    h.cfg.Gate.BreakerMaxFailures,
		OpenTimeout:    h.cfg.Gate.BreakerTimeout.Std(),
		NotifyInterval: h.cfg.Gate.NotifyInterval.Std(),
		NotifyBurst:    h.cfg.Gate.NotifyBurst,
		Notifier:       notifier,
		Executor:       h.loop,
		Metrics:        h.metrics,
		Logger:         h.log,
	})
	return nil
}

// autoGrant resolves the configured identities or type names
func (h *Host) autoGrant() []types.WidgetID {
	var ids []types.WidgetID
	for _, ref := range h.cfg.Widgets.AutoGrant {
		meta, err := h.resolve(ref)
		if err != nil {
			h.log.Warn("ignoring autogrant entry", zap.String("widget", ref), zap.Error(err))
			continue
		}
		ids = append(ids, meta.ID)
	}
	return ids
}

func (h *Host) globalScopes() []types.Scope {
	scopes := make([]types.Scope, 0, len(h.cfg.Widgets.GlobalScopes))
	for _, s := range h.cfg.Widgets.GlobalScopes {
		scopes = append(scopes, types.Scope(s))
	}
	return scopes
}

// resolve finds a widget type by identity or runtime type name
func (h *Host) resolve(ref string) (types.WidgetMetadata, error) {
	ref = strings.TrimSpace(ref)
	if id, err := types.ParseWidgetID(ref); err == nil {
		if meta, ok := h.registry.Lookup(id); ok {
			return meta, nil
		}
		return types.WidgetMetadata{}, fmt.Errorf("%w: %s", types.ErrNotRegistered, ref)
	}
	if meta, ok := h.registry.LookupType(ref); ok {
		return meta, nil
	}
	return types.WidgetMetadata{}, fmt.Errorf("%w: %q", types.ErrNotRegistered, ref)
}

// Run blocks until ctx is done or the dispatcher stops
func (h *Host) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-h.loop.Done():
		return dispatch.ErrStopped
	}
}

// Close tears the host down in reverse order. Persisted state is kept.
// Calling Close more than once returns the first result.
func (h *Host) Close() error {
	h.closeOnce.Do(func() { h.closeErr = h.teardown() })
	return h.closeErr
}

func (h *Host) teardown() error {
	var errs []error

	if h.coordinator != nil && h.coordinator.Owner() {
		if err := h.coordinator.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if h.diag != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := h.diag.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop diagnostics: %w", err))
		}
		cancel()
	}

	if h.instances != nil {
		h.instances.Shutdown()
	}

	if h.stopLoop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := h.loop.Flush(ctx); err != nil {
			h.log.Warn("dispatcher did not drain", zap.Error(err))
		}
		cancel()
		h.stopLoop()
		<-h.loop.Done()
	}

	if h.closer != nil {
		if err := h.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close settings: %w", err))
		}
	}

	_ = h.log.Sync()
	return errors.Join(errs...)
}

// Registry returns the widget catalogue
func (h *Host) Registry() *registry.Registry { return h.registry }

// Permissions returns the permission manager
func (h *Host) Permissions() *permission.Manager { return h.permissions }

// Instances returns the instance manager
func (h *Host) Instances() *instance.Manager { return h.instances }

// Gate returns the capability gate for widget data providers
func (h *Host) Gate() *instance.Gate { return h.gate }

// Dispatcher returns the UI-affine loop
func (h *Host) Dispatcher() *dispatch.Loop { return h.loop }

// DiagnosticsAddr returns the bound diagnostics address, or nil
func (h *Host) DiagnosticsAddr() net.Addr { return h.diagAddr }

func logNotifier(log *zap.Logger) instance.Notifier {
	log = log.Named("notify")
	return instance.NotifierFunc(func(n instance.Notification) {
		log.Warn(n.Message,
			logging.Widget(n.Widget),
			logging.Scope(n.Scope),
			zap.Error(n.Err))
	})
}
