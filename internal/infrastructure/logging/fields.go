package logging

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
)

// Widget tags a log entry with a widget identity.
func Widget(id types.WidgetID) zap.Field {
	return zap.Stringer("widget", id)
}

// Scope tags a log entry with a capability scope.
func Scope(scope types.Scope) zap.Field {
	return zap.String("scope", string(scope))
}

// Subject tags a log entry with a permission subject.
func Subject(subject types.Subject) zap.Field {
	return zap.Stringer("subject", subject)
}

// Client tags a log entry with a secondary-view client id. Empty ids are
// skipped.
func Client(clientID string) zap.Field {
	if clientID == "" {
		return zap.Skip()
	}
	return zap.String("client", clientID)
}

// State tags a log entry with a permission state.
func State(state types.PermissionState) zap.Field {
	return zap.Stringer("state", state)
}
