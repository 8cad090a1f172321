// Package main is the entry point of the desk widget host.
//
// The first process to start owns the desktop. It restores pinned widgets
// and listens for commands from later invocations, which forward their
// arguments and exit immediately.
//
// Usage:
//
//	# Start the host (or bring the running one to the front)
//	deskwidgets
//
//	# Pin a widget, by type name or identity
//	deskwidgets addwidget widgets.weather
//
//	# Hide every widget window
//	deskwidgets hidewidget
//
//	# Development mode (console logs, developer widgets)
//	deskwidgets --dev
//
// Configuration:
//   - Defaults
//   - TOML file (--config, or the XDG config location when present)
//   - Environment variables
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
