// internal/vfd/protocol_test.go
package vfd

import "testing"

func TestNewKnowsEveryListedFamily(t *testing.T) {
	for _, name := range Families() {
		p, err := New(name, 0x01)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if p.Name() != name {
			t.Errorf("New(%q).Name() = %q", name, p.Name())
		}
	}
}

func TestNewRejectsUnknownFamily(t *testing.T) {
	if _, err := New("ge-fanuc", 0x01); err == nil {
		t.Fatal("unknown family should error")
	}
}

func TestClampKeepsZeroAndSaturates(t *testing.T) {
	var dev Device
	dev.Reset(2000, 12000)

	cases := []struct{ in, want uint32 }{
		{0, 0},
		{1, 2000},
		{1999, 2000},
		{2000, 2000},
		{7000, 7000},
		{12000, 12000},
		{90000, 12000},
	}
	for _, c := range cases {
		if got := dev.Clamp(c.in); got != c.want {
			t.Errorf("Clamp(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestClampDegenerateRangeCollapsesToCeiling(t *testing.T) {
	var dev Device
	dev.Reset(5000, 5000)
	if got := dev.Clamp(100); got != 5000 {
		t.Fatalf("Clamp(100) = %d, want 5000", got)
	}
	if got := dev.Clamp(0); got != 0 {
		t.Fatalf("Clamp(0) = %d, want 0", got)
	}
}

func TestDiscoveredCeilingLowersEffectiveMax(t *testing.T) {
	var dev Device
	dev.Reset(1000, 24000)
	dev.SetDeviceMaxRPM(12000)
	if got := dev.MaxRPM(); got != 12000 {
		t.Fatalf("MaxRPM() = %d, want the discovered 12000", got)
	}
	if got := dev.Clamp(20000); got != 12000 {
		t.Fatalf("Clamp(20000) = %d, want 12000", got)
	}

	// A ceiling above the configured max never raises it.
	dev.Reset(1000, 24000)
	dev.SetDeviceMaxRPM(60000)
	if got := dev.MaxRPM(); got != 24000 {
		t.Fatalf("MaxRPM() = %d, want the configured 24000", got)
	}
}

func TestMarkTaskStartedFlipsOnce(t *testing.T) {
	var dev Device
	if !dev.MarkTaskStarted() {
		t.Fatal("first caller should win the guard")
	}
	if dev.MarkTaskStarted() {
		t.Fatal("second caller must not start another task")
	}
	dev.Reset(0, 1000)
	if dev.MarkTaskStarted() {
		t.Fatal("Reset must not rearm the task guard")
	}
}
