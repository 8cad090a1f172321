// Package types provides shared data structures for the widget host.
//
// This package defines core types used across the domain packages,
// ensuring every component agrees on identities, scopes and states.
//
// Core Types:
//   - WidgetID: Stable identity of a widget type
//   - WidgetMetadata: Immutable snapshot of a widget type's declarations
//   - Scope: Open capability name a widget may request
//   - Subject: Permission subject (global or one widget identity)
//   - Permission: Persisted grant record for (subject, scope)
//
// State Management:
//   - PermissionState: undefined, requested, allowed, denied
//   - InstanceState: preview, activated, pinned, secondary view, hidden
//   - WindowPosition, WindowSize: Window geometry
//
// Example Usage:
//
//	id, _ := types.ParseWidgetID("0f3c1d8e-6a1b-4c55-9a0e-4b1f3f2f7a11")
//	subject := types.WidgetSubject(id)
//	if manager.HasPermission(subject, types.ScopeAppointments) {
//	    // read calendar
//	}
package types
