// Package logging provides structured logging using uber/zap.
//
// This package offers two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a *zap.Logger and name themselves:
//
//	log := logging.NewDefault().Named("permission")
//	log.Info("state changed", logging.Widget(id), logging.Scope(scope))
//
// Field helpers keep widget, scope and subject keys consistent across
// packages.
package logging
