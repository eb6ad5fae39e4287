package profiling

import (
	"strings"
	"testing"
	"time"
)

func TestTrackAndReset(t *testing.T) {
	ResetFrame()
	stop := Track("terrain.Update")
	time.Sleep(2 * time.Millisecond)
	stop()
	Track("terrain.load")()

	ss := Snapshot()
	if ss["terrain.Update"] < 2*time.Millisecond {
		t.Fatalf("terrain.Update = %v, want >= 2ms", ss["terrain.Update"])
	}
	if got := SumWithPrefix("terrain."); got < ss["terrain.Update"] {
		t.Errorf("SumWithPrefix = %v, want >= %v", got, ss["terrain.Update"])
	}
	if top := TopN(1); !strings.HasPrefix(top, "terrain.Update:") {
		t.Errorf("TopN(1) = %q", top)
	}

	ResetFrame()
	if len(Snapshot()) != 0 {
		t.Errorf("ResetFrame left %d entries", len(Snapshot()))
	}
}

func TestCounters(t *testing.T) {
	ResetCounters()
	Add("chunks.generated", 1200)
	Add("chunks.generated", 34)
	Add("vertex.bytes", 3<<20)

	if got := Counter("chunks.generated"); got != 1234 {
		t.Fatalf("Counter = %d, want 1234", got)
	}
	want := "chunks.generated=1,234 vertex.bytes=3.0 MiB"
	if got := Counters(); got != want {
		t.Errorf("Counters() = %q, want %q", got, want)
	}

	ResetFrame()
	if Counter("chunks.generated") != 1234 {
		t.Errorf("ResetFrame must not clear counters")
	}
}
