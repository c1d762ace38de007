// Package dispatch serializes controller commands onto the wrapped engine.
// A single Dispatcher goroutine owns the engine; the front-end loop only
// pushes commands and raises the cancellation signal.
package dispatch

import "strings"

// Kind classifies a controller command.
type Kind int

const (
	KindUnknown Kind = iota
	KindPosition
	KindIsReady
	KindSetOption
	KindGo
	KindGoInfinite
	KindGoPonder
	KindStop
	KindPonderHit
	KindNewGame
	KindQuit
)

var kindNames = [...]string{
	KindUnknown:    "unknown",
	KindPosition:   "position",
	KindIsReady:    "isready",
	KindSetOption:  "setoption",
	KindGo:         "go",
	KindGoInfinite: "go infinite",
	KindGoPonder:   "go ponder",
	KindStop:       "stop",
	KindPonderHit:  "ponderhit",
	KindNewGame:    "ucinewgame",
	KindQuit:       "quit",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Command is one controller line queued for the dispatcher.
type Command struct {
	Kind Kind
	Line string
}

// Parse classifies a controller line. Searches are told apart by their
// arguments: any "go" with "infinite" is unbounded, with "ponder" it is a
// ponder search, anything else is bounded.
func Parse(line string) Command {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	cmd := Command{Line: line}
	if len(fields) == 0 {
		return cmd
	}

	switch fields[0] {
	case "position":
		cmd.Kind = KindPosition
	case "isready":
		cmd.Kind = KindIsReady
	case "setoption":
		cmd.Kind = KindSetOption
	case "go":
		cmd.Kind = KindGo
		for _, arg := range fields[1:] {
			switch arg {
			case "infinite":
				cmd.Kind = KindGoInfinite
			case "ponder":
				if cmd.Kind != KindGoInfinite {
					cmd.Kind = KindGoPonder
				}
			}
		}
	case "stop":
		cmd.Kind = KindStop
	case "ponderhit":
		cmd.Kind = KindPonderHit
	case "ucinewgame":
		cmd.Kind = KindNewGame
	case "quit":
		cmd.Kind = KindQuit
	}
	return cmd
}

// IsSearch reports whether the command starts a search.
func (c Command) IsSearch() bool {
	return c.Kind == KindGo || c.Kind == KindGoInfinite || c.Kind == KindGoPonder
}

// ParseSetOption splits "setoption name <name> [value <value>]". Names and
// values may contain spaces.
func ParseSetOption(line string) (name, value string) {
	var names, values []string
	readingName, readingValue := false, false

	for _, arg := range strings.Fields(line)[1:] {
		switch {
		case arg == "name" && !readingValue:
			readingName = true
		case arg == "value" && readingName:
			readingName = false
			readingValue = true
		case readingName:
			names = append(names, arg)
		case readingValue:
			values = append(values, arg)
		}
	}
	return strings.Join(names, " "), strings.Join(values, " ")
}
