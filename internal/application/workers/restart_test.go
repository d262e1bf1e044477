package workers

import (
	"testing"
	"time"
)

func TestWindowAllowsUpToMax(t *testing.T) {
	w := NewWindow(3, time.Minute)
	base := time.Now()

	for i := 0; i < 3; i++ {
		if !w.Allow(base.Add(time.Duration(i) * time.Second)) {
			t.Fatalf("failure %d should be within budget", i+1)
		}
	}

	if w.Allow(base.Add(4 * time.Second)) {
		t.Error("4th failure within the window should exceed the budget")
	}
}

func TestWindowEvictsOldFailures(t *testing.T) {
	w := NewWindow(3, time.Minute)
	base := time.Now()

	w.Allow(base)
	w.Allow(base.Add(time.Second))
	w.Allow(base.Add(2 * time.Second))

	// The first failure has aged out, so the budget covers a new one.
	if !w.Allow(base.Add(60500 * time.Millisecond)) {
		t.Error("failure after window expiry should be allowed")
	}

	// But the window is full again with the three most recent entries.
	if w.Allow(base.Add(61 * time.Second)) {
		t.Error("window should be full again")
	}
}

func TestWindowSequentialBursts(t *testing.T) {
	w := NewWindow(2, 10*time.Second)
	base := time.Now()

	if !w.Allow(base) || !w.Allow(base.Add(time.Second)) {
		t.Fatal("first burst should be allowed")
	}
	if w.Allow(base.Add(2 * time.Second)) {
		t.Fatal("burst should exhaust the budget")
	}

	// A full window-length later everything has aged out.
	later := base.Add(20 * time.Second)
	if !w.Allow(later) || !w.Allow(later.Add(time.Second)) {
		t.Error("budget should fully recover after the window passes")
	}
}
