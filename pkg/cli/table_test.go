package cli

import (
	"reflect"
	"testing"
)

func TestCapWidths_NoConstraint(t *testing.T) {
	widths := []int{5, 20, 10}
	headers := []string{"NAME", "BASE", "STATE"}
	// Total: 5+20+10 + 2*2 + prefix 0 = 39; fits in an 80-col terminal.
	got := capWidths(widths, headers, 80, 0)
	if !reflect.DeepEqual(got, widths) {
		t.Errorf("expected no change: got %v, want %v", got, widths)
	}
}

func TestCapWidths_ReducesWidest(t *testing.T) {
	// 5 + 60 + 10 + 2*2 = 79 -> just over 78
	widths := []int{5, 60, 10}
	headers := []string{"NAME", "CONNECTOR TARGET", "STATE"}
	got := capWidths(widths, headers, 78, 0)
	total := 0
	for _, w := range got {
		total += w
	}
	total += 2 * (len(got) - 1)
	if total > 78 {
		t.Errorf("total %d still exceeds 78; widths=%v", total, got)
	}
	if got[0] != widths[0] {
		t.Errorf("column 0 should be unchanged: got %d, want %d", got[0], widths[0])
	}
	if got[2] != widths[2] {
		t.Errorf("column 2 should be unchanged: got %d, want %d", got[2], widths[2])
	}
}

func TestCapWidths_RespectsHeaderMinimum(t *testing.T) {
	widths := []int{4, 60}
	headers := []string{"NAME", "A-VERY-LONG-HEADER-NAME"}
	got := capWidths(widths, headers, 30, 2)
	if got[1] < visualLen("A-VERY-LONG-HEADER-NAME") {
		t.Errorf("column 1 reduced below header minimum: got %d", got[1])
	}
}

func TestCapWidths_CannotReduceFurther(t *testing.T) {
	widths := []int{4, 8}
	headers := []string{"NAME", "STATE"}
	// 4+8+2 = 14; terminal width = 5 (impossibly narrow).
	got := capWidths(widths, headers, 5, 0)
	if got[0] < visualLen("NAME") {
		t.Errorf("column 0 below header minimum: %d", got[0])
	}
	if got[1] < visualLen("STATE") {
		t.Errorf("column 1 below header minimum: %d", got[1])
	}
}

func TestWrapCell_FitsUnchanged(t *testing.T) {
	got := wrapCell("idle", 10)
	if !reflect.DeepEqual(got, []string{"idle"}) {
		t.Errorf("got %v, want [idle]", got)
	}
}

func TestWrapCell_ExactFit(t *testing.T) {
	got := wrapCell("locked", 6)
	if !reflect.DeepEqual(got, []string{"locked"}) {
		t.Errorf("got %v, want [locked]", got)
	}
}

func TestWrapCell_WordWrap(t *testing.T) {
	// "counter logic idle" wrapped at 13: "counter logic" (13), "idle" (4)
	got := wrapCell("counter logic idle", 13)
	want := []string{"counter logic", "idle"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestWrapCell_HardBreakLongWord(t *testing.T) {
	// A single connector target name longer than the column width.
	got := wrapCell("abcdefghij", 4)
	want := []string{"abcd", "efgh", "ij"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestWrapCell_LastErrorCell(t *testing.T) {
	// Typical last-error cell: "connector hw: no module named camera"
	got := wrapCell("connector hw: no module named camera", 20)
	if len(got) < 2 {
		t.Fatalf("expected wrapping: got %v", got)
	}
	for _, line := range got {
		if visualLen(line) > 20 {
			t.Errorf("line %q exceeds width 20 (len=%d)", line, visualLen(line))
		}
	}
}

func TestWrapCell_ANSIPreservedWhenFits(t *testing.T) {
	colored := StateColor("idle")
	got := wrapCell(colored, 10)
	if !reflect.DeepEqual(got, []string{colored}) {
		t.Errorf("ANSI string should be returned unchanged when it fits: got %v", got)
	}
}

func TestWrapCell_EmptyString(t *testing.T) {
	got := wrapCell("", 10)
	if !reflect.DeepEqual(got, []string{""}) {
		t.Errorf("got %v, want [\"\"]", got)
	}
}

func TestWrapCell_MultiWordExactBoundary(t *testing.T) {
	// "aa bb cc" at width 5: "aa bb" (5), "cc" (2)
	got := wrapCell("aa bb cc", 5)
	want := []string{"aa bb", "cc"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
