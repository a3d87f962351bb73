// Package cli provides the formatting primitives labrigctl builds its
// output on: ANSI color helpers, dot-leader padding, and the Table type in
// table.go.
package cli

import "strings"

// ANSI color helpers, used directly for one-line status messages
// ("activated counter_logic") and through StateColor for table cells.

func Green(s string) string  { return "\033[32m" + s + "\033[0m" }
func Yellow(s string) string { return "\033[33m" + s + "\033[0m" }
func Red(s string) string    { return "\033[31m" + s + "\033[0m" }
func Bold(s string) string   { return "\033[1m" + s + "\033[0m" }
func Dim(s string) string    { return "\033[2m" + s + "\033[0m" }

// StateColor colors a module's lifecycle state the way labrigctl module
// list wants it to read at a glance: idle active work in green, locked in
// yellow since it's active but not interruptible, deactivated dimmed since
// it's the quiescent default. Anything else (an unrecognized state string
// from a peer running a newer wire version) passes through uncolored.
func StateColor(state string) string {
	switch state {
	case "idle":
		return Green(state)
	case "locked":
		return Yellow(state)
	case "deactivated":
		return Dim(state)
	default:
		return state
	}
}

// DotPad pads name with dots to the given width, the leader labrigctl uses
// to line up a module or task name against a trailing value.
// Example: DotPad("counter_logic", 30) → "counter_logic ................"
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	dots := width - len(name) - 1
	return name + " " + strings.Repeat(".", dots)
}
