package traffic

import (
	"sync"
	"testing"
)

func TestUnknownSessionIsZero(t *testing.T) {
	a := New()
	got := a.Get("nobody")
	if got.BytesSent != 0 || got.BytesReceived != 0 {
		t.Fatalf("expected zeroes, got %+v", got)
	}
}

func TestCountersAccumulateConcurrently(t *testing.T) {
	a := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := a.ForSession("p1")
			for j := 0; j < 1000; j++ {
				c.AddSent(3)
				c.AddReceived(5)
			}
		}()
	}
	wg.Wait()

	got := a.Get("p1")
	if got.BytesSent != 16*1000*3 {
		t.Fatalf("sent = %d", got.BytesSent)
	}
	if got.BytesReceived != 16*1000*5 {
		t.Fatalf("received = %d", got.BytesReceived)
	}
}

func TestResetKeepsSharedCounters(t *testing.T) {
	a := New()
	c := a.ForSession("p1")
	c.AddSent(10)
	a.Reset("p1")
	c.AddSent(4)

	if got := a.Get("p1").BytesSent; got != 4 {
		t.Fatalf("sent after reset = %d", got)
	}
	if a.ForSession("p1") != c {
		t.Fatal("reset must not replace the session counters")
	}
}

func TestAllIsSorted(t *testing.T) {
	a := New()
	a.ForSession("b").AddSent(1)
	a.ForSession("a").AddReceived(2)
	all := a.All()
	if len(all) != 2 || all[0].SessionID != "a" || all[1].SessionID != "b" {
		t.Fatalf("unexpected order: %+v", all)
	}
	a.ResetAll()
	if a.Get("a").BytesReceived != 0 {
		t.Fatal("ResetAll left data")
	}
}

func TestNegativeAndZeroIgnored(t *testing.T) {
	var c Counters
	c.AddSent(-5)
	c.AddReceived(0)
	if s := c.snapshot(); s.BytesSent != 0 || s.BytesReceived != 0 {
		t.Fatalf("unexpected counts %+v", s)
	}
}
