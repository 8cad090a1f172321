// Package server assembles the desk widget host.
//
// A Host owns every long-lived component and wires them in a fixed order:
//  1. Logger from configuration
//  2. Single-instance gate (lock file and command channel)
//  3. Settings store (SQLite behind a read-through cache)
//  4. Widget registry from the embedded catalogue
//  5. Permission manager, instance manager and capability gate
//  6. Dispatcher loop, then reactivation of persisted pins
//  7. Optional diagnostics API
//
// A process that loses the single-instance race forwards its command line
// to the owner and builds nothing else.
//
// Example Usage:
//
//	h := server.New(cfg)
//	owner, err := h.Start(ctx, args)
//	if err != nil || !owner {
//	    return err
//	}
//	defer h.Close()
//	return h.Run(ctx)
package server
