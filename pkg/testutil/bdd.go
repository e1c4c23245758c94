package testutil

import "testing"

// Given, When and Then name nested subtests after the step they describe, so a
// failing workflow reads as "Given an approved proposal/When the accepted buyer signs the NDA/Then ...".
func Given(t *testing.T, desc string, fn func(t *testing.T)) { step(t, "Given", desc, fn) }

func When(t *testing.T, desc string, fn func(t *testing.T)) { step(t, "When", desc, fn) }

func Then(t *testing.T, desc string, fn func(t *testing.T)) { step(t, "Then", desc, fn) }

// A failed step stops the enclosing scenario; later steps depend on its state.
func step(t *testing.T, keyword, desc string, fn func(t *testing.T)) {
	t.Helper()
	if !t.Run(keyword+" "+desc, fn) {
		t.FailNow()
	}
}
