// internal/health/tracker_test.go
package health

import "testing"

func TestFailReportsOnlyFirstEdge(t *testing.T) {
	var tr Tracker
	if !tr.Fail() {
		t.Fatal("first Fail should report the episode start")
	}
	for i := 0; i < 4; i++ {
		if tr.Fail() {
			t.Fatalf("Fail %d reported an edge inside an episode", i+2)
		}
	}
	if !tr.Faulted() {
		t.Fatal("tracker should be faulted")
	}
}

func TestRecoverCountsAbsorbedFailures(t *testing.T) {
	var tr Tracker
	tr.Fail()
	tr.Fail()
	tr.Fail()
	n, edge := tr.Recover()
	if !edge {
		t.Fatal("Recover after failures should report an edge")
	}
	if n != 3 {
		t.Fatalf("Recover returned %d failures, want 3", n)
	}
	if tr.Faulted() {
		t.Fatal("tracker should be healthy after recovery")
	}
}

func TestRecoverWhileHealthyIsSilent(t *testing.T) {
	var tr Tracker
	if n, edge := tr.Recover(); edge || n != 0 {
		t.Fatalf("Recover on healthy tracker returned (%d, %v)", n, edge)
	}
}

func TestEpisodesDoNotLeakCounts(t *testing.T) {
	var tr Tracker
	tr.Fail()
	tr.Recover()
	tr.Fail()
	n, _ := tr.Recover()
	if n != 1 {
		t.Fatalf("second episode absorbed %d failures, want 1", n)
	}
}
