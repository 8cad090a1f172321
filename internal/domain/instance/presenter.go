package instance

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/dispatch"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/logging"
)

// Presenter renders instances. All calls arrive on the dispatcher.
type Presenter interface {
	// Show makes the instance visible as its current state describes
	Show(ctx context.Context, inst *Instance) error
	Hide(inst *Instance)
	Close(inst *Instance)
	// Update redraws after a layout or permission change
	Update(inst *Instance)
}

// Executor runs presentation work on the UI-affine context.
// *dispatch.Loop implements it.
type Executor interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
	Post(task dispatch.Task) bool
}

// inline runs everything on the calling goroutine. Used when no dispatcher
// is configured.
type inline struct{}

func (inline) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

func (inline) Post(task dispatch.Task) bool {
	task(context.Background())
	return true
}

// LogPresenter logs presentation calls. It backs the headless host.
type LogPresenter struct {
	Log *zap.Logger
}

func (p LogPresenter) logger() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}

func (p LogPresenter) Show(_ context.Context, inst *Instance) error {
	p.logger().Info("show", fields(inst)...)
	return nil
}

func (p LogPresenter) Hide(inst *Instance) {
	p.logger().Info("hide", fields(inst)...)
}

func (p LogPresenter) Close(inst *Instance) {
	p.logger().Info("close", fields(inst)...)
}

func (p LogPresenter) Update(inst *Instance) {
	p.logger().Debug("update", fields(inst)...)
}

func fields(inst *Instance) []zap.Field {
	v := inst.Snapshot()
	return []zap.Field{
		logging.Widget(v.Widget),
		logging.Client(v.ClientID),
		zap.String("instance", v.ID.String()),
		zap.String("state", string(v.State)),
		zap.Int("missing_scopes", len(v.MissingScopes)),
	}
}
