// Package instance tracks the live widget instances of the host.
//
// Each widget type can have several instances, one per Key. An instance is
// in one of five states:
//
//   - Preview: transient, shown inside the host; at most one at a time
//   - Activated: tracked in the live table
//   - Pinned: a standalone desktop window, persisted across restarts
//   - SecondaryView: a child window of a multi-view parent, one per client
//   - Hidden: retained but not visible
//
// Pin flags, positions and sizes live in the settings store; the Manager
// table is a view over them, and ReactivatePinned rebuilds it at startup.
// Presentation goes through a Presenter on the UI-affine dispatcher.
//
// Gate runs the widgets' capability-gated operations: it checks the
// declared scopes and grants, and shields network widgets behind a
// circuit breaker.
package instance
