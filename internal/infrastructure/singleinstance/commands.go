package singleinstance

import "strings"

// Recognized command verbs
const (
	CommandAddWidget  = "addwidget"
	CommandHideWidget = "hidewidget"
	CommandSettings   = "settings"
)

// Command is a parsed command line
type Command struct {
	Verb string
	Args []string
	Raw  string
}

// Parse splits a command line into a lowercased verb and its arguments.
// Unrecognized verbs are kept; the handler decides what applies.
func Parse(raw string) Command {
	fields := strings.Fields(raw)
	cmd := Command{Raw: raw}
	if len(fields) == 0 {
		return cmd
	}
	cmd.Verb = strings.ToLower(fields[0])
	cmd.Args = fields[1:]
	return cmd
}

// Known reports whether the verb is one of the recognized commands
func (c Command) Known() bool {
	switch c.Verb {
	case CommandAddWidget, CommandHideWidget, CommandSettings:
		return true
	}
	return false
}

// Label returns the metric label of the command
func (c Command) Label() string {
	switch {
	case c.Known():
		return c.Verb
	case c.Verb == "":
		return "empty"
	default:
		return "other"
	}
}
