package server

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/logging"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/singleinstance"
)

// handleCommand routes one command line. It runs on the dispatcher, either
// forwarded by a second process or taken from our own arguments.
func (h *Host) handleCommand(ctx context.Context, raw string) {
	cmd := singleinstance.Parse(raw)
	log := h.log.With(zap.String("command", cmd.Verb))

	switch cmd.Verb {
	case singleinstance.CommandAddWidget:
		if len(cmd.Args) == 0 {
			log.Warn("addwidget needs a widget identity or type name")
			return
		}
		for _, ref := range cmd.Args {
			h.addWidget(ctx, log, ref)
		}

	case singleinstance.CommandHideWidget:
		n := h.instances.HideAll()
		log.Info("hid all widgets", zap.Int("count", n))

	case singleinstance.CommandSettings:
		// The settings surface is owned by the shell.
		log.Info("settings requested")

	case "":
		log.Debug("activated without a command")

	default:
		log.Warn("unknown command", zap.String("raw", raw))
	}
}

func (h *Host) addWidget(ctx context.Context, log *zap.Logger, ref string) {
	meta, err := h.resolve(ref)
	if err != nil {
		log.Warn("cannot add widget", zap.String("widget", ref), zap.Error(err))
		return
	}
	inst, err := h.instances.PinToDesktop(ctx, meta.ID, "")
	if err != nil {
		log.Error("pin failed", logging.Widget(meta.ID), zap.Error(err))
		return
	}
	if missing := inst.MissingScopes(); len(missing) > 0 {
		log.Info("widget pinned without all grants",
			logging.Widget(meta.ID), zap.Int("missing_scopes", len(missing)))
	}
}
