package profiling

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Lightweight per-frame CPU profiler plus process-lifetime counters.

var (
	mu          sync.Mutex
	frameTotals = make(map[string]time.Duration)
	counters    = make(map[string]int64)
)

// Track returns a stop function that records the elapsed time under the given name.
// Usage: defer profiling.Track("terrain.Update")()
func Track(name string) func() {
	start := time.Now()
	return func() {
		d := time.Since(start)
		mu.Lock()
		frameTotals[name] += d
		mu.Unlock()
	}
}

// ResetFrame clears current per-frame totals. Call at the start of each frame.
func ResetFrame() {
	mu.Lock()
	clear(frameTotals)
	mu.Unlock()
}

// Snapshot returns a copy of current per-frame totals.
func Snapshot() map[string]time.Duration {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]time.Duration, len(frameTotals))
	for k, v := range frameTotals {
		out[k] = v
	}
	return out
}

// SumWithPrefix adds up the per-frame totals whose name starts with prefix.
func SumWithPrefix(prefix string) time.Duration {
	mu.Lock()
	defer mu.Unlock()
	var sum time.Duration
	for k, v := range frameTotals {
		if strings.HasPrefix(k, prefix) {
			sum += v
		}
	}
	return sum
}

// TopN formats top N durations from the current frame totals.
// Example: "terrain.Update:4.2ms, renderer.Render:2.1ms"
func TopN(n int) string {
	ss := Snapshot()
	type pair struct {
		name string
		dur  time.Duration
	}
	list := make([]pair, 0, len(ss))
	for k, v := range ss {
		list = append(list, pair{name: k, dur: v})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].dur > list[j].dur })
	n = min(n, len(list))
	parts := make([]string, 0, n)
	for _, p := range list[:n] {
		parts = append(parts, fmt.Sprintf("%s:%.1fms", p.name, float64(p.dur.Microseconds())/1000.0))
	}
	return strings.Join(parts, ", ")
}

// Add bumps a counter. Counters survive ResetFrame.
func Add(name string, delta int64) {
	mu.Lock()
	counters[name] += delta
	mu.Unlock()
}

// Counter returns the current value of a counter.
func Counter(name string) int64 {
	mu.Lock()
	defer mu.Unlock()
	return counters[name]
}

// Counters formats every counter sorted by name. Counters whose name ends
// in ".bytes" are printed as sizes.
func Counters() string {
	mu.Lock()
	names := make([]string, 0, len(counters))
	for k := range counters {
		names = append(names, k)
	}
	values := make(map[string]int64, len(counters))
	for k, v := range counters {
		values[k] = v
	}
	mu.Unlock()

	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		v := values[k]
		if strings.HasSuffix(k, ".bytes") && v >= 0 {
			parts = append(parts, k+"="+humanize.IBytes(uint64(v)))
			continue
		}
		parts = append(parts, k+"="+humanize.Comma(v))
	}
	return strings.Join(parts, " ")
}

// ResetCounters zeroes every counter.
func ResetCounters() {
	mu.Lock()
	clear(counters)
	mu.Unlock()
}
