package instance

import (
	"github.com/GriffinCanCode/deskwidgets/internal/domain/permission"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
)

// Checker answers grant queries. *permission.Manager implements it.
type Checker interface {
	HasPermission(subject types.Subject, scope types.Scope) bool
}

// Permissions is a Checker that also emits change events
type Permissions interface {
	Checker
	Subscribe(handler permission.Handler) func()
}

// policy decides whether a widget may use a scope: either the widget holds
// the grant, or the scope is process-wide and the global subject holds it.
type policy struct {
	perms  Checker
	global map[types.Scope]struct{}
}

func newPolicy(perms Checker, global []types.Scope) policy {
	p := policy{perms: perms, global: make(map[types.Scope]struct{}, len(global))}
	for _, s := range global {
		p.global[s] = struct{}{}
	}
	return p
}

func (p policy) isGlobal(scope types.Scope) bool {
	_, ok := p.global[scope]
	return ok
}

func (p policy) allowed(id types.WidgetID, scope types.Scope) bool {
	if p.perms == nil {
		return false
	}
	if p.perms.HasPermission(types.WidgetSubject(id), scope) {
		return true
	}
	return p.isGlobal(scope) && p.perms.HasPermission(types.GlobalSubject(), scope)
}

// missing returns the declared scopes that are not allowed, in declaration
// order. It returns nil when everything is granted.
func (p policy) missing(meta types.WidgetMetadata) []types.Scope {
	var out []types.Scope
	for _, s := range meta.Scopes {
		if !p.allowed(meta.ID, s) {
			out = append(out, s)
		}
	}
	return out
}
