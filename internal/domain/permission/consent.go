package permission

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/logging"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
)

// Request describes a consent prompt
type Request struct {
	Subject types.Subject
	Scope   types.Scope
	Level   types.PermissionLevel
}

// Consent asks the user to grant a permission. Only an Allowed answer with
// a nil error grants; everything else resolves the request as Denied.
// Implementations must return promptly once ctx is done.
type Consent interface {
	Ask(ctx context.Context, req Request) (types.PermissionState, error)
}

// ConsentFunc adapts a function to Consent
type ConsentFunc func(ctx context.Context, req Request) (types.PermissionState, error)

// Ask calls f
func (f ConsentFunc) Ask(ctx context.Context, req Request) (types.PermissionState, error) {
	return f(ctx, req)
}

// DenyAll answers every prompt with Denied. It is the headless default.
func DenyAll(log *zap.Logger) Consent {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("consent")
	return ConsentFunc(func(_ context.Context, req Request) (types.PermissionState, error) {
		log.Info("no consent surface, denying",
			logging.Subject(req.Subject), logging.Scope(req.Scope))
		return types.PermissionDenied, nil
	})
}

// AutoGrant answers Allowed for the listed widgets and defers everything
// else to fallback. For development hosts only.
func AutoGrant(widgets []types.WidgetID, fallback Consent) Consent {
	allowed := make(map[types.WidgetID]struct{}, len(widgets))
	for _, id := range widgets {
		allowed[id] = struct{}{}
	}
	return ConsentFunc(func(ctx context.Context, req Request) (types.PermissionState, error) {
		if id, ok := req.Subject.Widget(); ok {
			if _, ok := allowed[id]; ok {
				return types.PermissionAllowed, nil
			}
		}
		return fallback.Ask(ctx, req)
	})
}
