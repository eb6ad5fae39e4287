package viewer

import (
	"testing"
	"time"
)

func TestFPSLimiterPacesFrames(t *testing.T) {
	f := NewFPSLimiter()
	start := time.Now()
	for range 5 {
		f.Wait(100)
	}
	if el := time.Since(start); el < 45*time.Millisecond {
		t.Fatalf("5 frames at 100 fps took %v, want >= 45ms", el)
	}
}

func TestFPSLimiterDisabled(t *testing.T) {
	f := NewFPSLimiter()
	start := time.Now()
	for range 100 {
		f.Wait(0)
	}
	if el := time.Since(start); el > 50*time.Millisecond {
		t.Fatalf("unlimited Wait took %v", el)
	}
	if !f.next.IsZero() {
		t.Errorf("next = %v, want zero after disabling", f.next)
	}
}

func TestFPSLimiterResyncsAfterHitch(t *testing.T) {
	f := NewFPSLimiter()
	f.Wait(1000)
	time.Sleep(20 * time.Millisecond)
	f.Wait(1000)
	if ahead := time.Until(f.next); ahead < 0 || ahead > 2*time.Millisecond {
		t.Errorf("next frame due in %v after a hitch, want about 1ms", ahead)
	}
}
