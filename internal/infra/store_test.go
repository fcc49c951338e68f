package infra

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ── helpers ──

type memBackend struct {
	mu       sync.Mutex
	data     map[string][]byte
	writes   int
	failSave bool
}

func newMemBackend() *memBackend {
	return &memBackend{data: map[string][]byte{}}
}

func (b *memBackend) Read(name string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.data[name]
	if !ok {
		return nil, ErrNoSnapshot
	}
	return d, nil
}

func (b *memBackend) Write(name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes++
	if b.failSave {
		return errors.New("disk full")
	}
	b.data[name] = data
	return nil
}

func (b *memBackend) Remove(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, name)
	return nil
}

func (b *memBackend) put(name string, ts time.Time, payload string) {
	b.data[name] = []byte(fmt.Sprintf(`{"timestamp": %f, "payload": %s}`, toEpoch(ts), payload))
}

type countingFetch struct {
	calls atomic.Int32
	value map[string]float64
	err   error
}

func (f *countingFetch) fetch(ctx context.Context) (map[string]float64, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.value, nil
}

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestStore(b Backend, f *countingFetch, ttl time.Duration) *Store[map[string]float64] {
	return NewStore(StoreOptions[map[string]float64]{
		Name:    "fees",
		TTL:     ttl,
		Fetch:   f.fetch,
		Backend: b,
		Clock:   ClockFunc(func() time.Time { return fixedNow }),
		Empty:   func() map[string]float64 { return map[string]float64{} },
	})
}

// ── TTL ──

func TestStoreSnapshotFreshness(t *testing.T) {
	const ttl = 7 * 24 * time.Hour

	tests := []struct {
		name       string
		age        time.Duration
		wantFetch  int32
		wantSource Outcome
	}{
		{"one second old is fresh", time.Second, 0, FromSnapshot},
		{"ttl plus one second is stale", ttl + time.Second, 1, Fetched},
		{"exactly ttl is stale", ttl, 1, Fetched},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := newMemBackend()
			b.put("fees", fixedNow.Add(-tc.age), `{"1306": 0.06}`)
			f := &countingFetch{value: map[string]float64{"1306": 0.11}}

			res := newTestStore(b, f, ttl).Get(context.Background(), false)

			if got := f.calls.Load(); got != tc.wantFetch {
				t.Errorf("live fetches: got %d, want %d", got, tc.wantFetch)
			}
			if res.Source != tc.wantSource {
				t.Errorf("source: got %s, want %s", res.Source, tc.wantSource)
			}
			if res.Err != nil {
				t.Errorf("unexpected error: %v", res.Err)
			}
		})
	}
}

func TestStoreSnapshotAdoptedIntoMemory(t *testing.T) {
	b := newMemBackend()
	b.put("fees", fixedNow.Add(-time.Hour), `{"1306": 0.06}`)
	f := &countingFetch{}
	s := newTestStore(b, f, 24*time.Hour)

	first := s.Get(context.Background(), false)
	if first.Source != FromSnapshot || first.Value["1306"] != 0.06 {
		t.Fatalf("first Get: %+v", first)
	}

	// Snapshot removed: memory must now answer.
	delete(b.data, "fees")
	second := s.Get(context.Background(), false)
	if second.Source != FromMemory || second.Value["1306"] != 0.06 {
		t.Errorf("second Get: %+v", second)
	}
	if f.calls.Load() != 0 {
		t.Errorf("fetch should not run, got %d calls", f.calls.Load())
	}
}

// ── live fetch / persistence ──

func TestStoreFetchPersistsSnapshot(t *testing.T) {
	b := newMemBackend()
	f := &countingFetch{value: map[string]float64{"1306": 0.06, "2644": 0.15}}
	s := newTestStore(b, f, time.Hour)

	res := s.Get(context.Background(), false)
	if res.Source != Fetched || len(res.Value) != 2 {
		t.Fatalf("Get: %+v", res)
	}
	ts, ok := s.SnapshotTime()
	if !ok {
		t.Fatal("snapshot not written")
	}
	if ts.Sub(fixedNow).Abs() > time.Millisecond {
		t.Errorf("snapshot time: got %s, want %s", ts, fixedNow)
	}

	// A fresh store over the same backend reads the snapshot instead of fetching.
	f2 := &countingFetch{}
	res2 := NewStore(StoreOptions[map[string]float64]{
		Name: "fees", TTL: time.Hour, Fetch: f2.fetch, Backend: b,
		Clock: ClockFunc(func() time.Time { return fixedNow.Add(time.Minute) }),
	}).Get(context.Background(), false)
	if res2.Source != FromSnapshot || res2.Value["2644"] != 0.15 || f2.calls.Load() != 0 {
		t.Errorf("second store: %+v (fetches %d)", res2, f2.calls.Load())
	}
}

func TestStorePersistFailureSwallowed(t *testing.T) {
	b := newMemBackend()
	b.failSave = true
	f := &countingFetch{value: map[string]float64{"1306": 0.06}}

	res := newTestStore(b, f, time.Hour).Get(context.Background(), false)
	if res.Source != Fetched || res.Err != nil || res.Value["1306"] != 0.06 {
		t.Errorf("Get with failing backend: %+v", res)
	}
	if b.writes != 1 {
		t.Errorf("writes: got %d, want 1", b.writes)
	}
}

func TestStoreCorruptSnapshotTreatedAsAbsent(t *testing.T) {
	for _, raw := range []string{`not json`, `{"payload": {"1306": 0.06}}`, `{"timestamp": "yesterday"}`} {
		b := newMemBackend()
		b.data["fees"] = []byte(raw)
		f := &countingFetch{value: map[string]float64{"1306": 0.07}}

		res := newTestStore(b, f, time.Hour).Get(context.Background(), false)
		if res.Source != Fetched || res.Value["1306"] != 0.07 {
			t.Errorf("snapshot %q: got %+v", raw, res)
		}
	}
}

func TestStoreRefreshSkipsTiers(t *testing.T) {
	b := newMemBackend()
	b.put("fees", fixedNow.Add(-time.Second), `{"1306": 0.06}`)
	f := &countingFetch{value: map[string]float64{"1306": 0.05}}
	s := newTestStore(b, f, time.Hour)

	s.Get(context.Background(), false) // memory now populated from snapshot
	res := s.Get(context.Background(), true)

	if res.Source != Fetched || res.Value["1306"] != 0.05 {
		t.Errorf("refresh: %+v", res)
	}
	if f.calls.Load() != 1 {
		t.Errorf("fetches: got %d, want 1", f.calls.Load())
	}
	if again := s.Get(context.Background(), false); again.Value["1306"] != 0.05 || again.Source != FromMemory {
		t.Errorf("after refresh: %+v", again)
	}
}

// ── degradation ──

func TestStoreColdFailureCachesEmpty(t *testing.T) {
	f := &countingFetch{err: errors.New("connection refused")}
	s := newTestStore(newMemBackend(), f, time.Hour)

	res := s.Get(context.Background(), false)
	if res.Source != EmptyOnFailure || res.Err == nil {
		t.Fatalf("cold failure: %+v", res)
	}
	if res.Value == nil || len(res.Value) != 0 {
		t.Errorf("value should be an empty map, got %#v", res.Value)
	}

	// Cached as empty: no refetch storm.
	again := s.Get(context.Background(), false)
	if again.Source != FromMemory || f.calls.Load() != 1 {
		t.Errorf("second Get: %+v (fetches %d)", again, f.calls.Load())
	}
}

func TestStoreCancelledFetchNotCached(t *testing.T) {
	f := &countingFetch{value: map[string]float64{"1306": 0.06}}
	s := newTestStore(newMemBackend(), f, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := s.Get(ctx, false)
	if res.Source != EmptyOnFailure || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("cancelled Get: %+v", res)
	}

	again := s.Get(context.Background(), false)
	if again.Source != Fetched || again.Value["1306"] != 0.06 {
		t.Errorf("Get after cancel: %+v", again)
	}
	if got := f.calls.Load(); got != 2 {
		t.Errorf("live fetches: got %d, want 2", got)
	}
}

func TestStoreFailureKeepsStaleValue(t *testing.T) {
	f := &countingFetch{value: map[string]float64{"1306": 0.06}}
	s := newTestStore(nil, f, time.Hour)
	s.Get(context.Background(), false)

	f.err = errors.New("HTTP 503")
	res := s.Get(context.Background(), true)
	if res.Source != StaleOnFailure || res.Value["1306"] != 0.06 || res.Err == nil {
		t.Errorf("failed refresh: %+v", res)
	}
	if !res.Source.Degraded() {
		t.Error("StaleOnFailure should be degraded")
	}
	if after := s.Get(context.Background(), false); after.Value["1306"] != 0.06 {
		t.Errorf("stale value overwritten: %+v", after)
	}
}

func TestStoreResetAndClear(t *testing.T) {
	b := newMemBackend()
	f := &countingFetch{value: map[string]float64{"1306": 0.06}}
	s := newTestStore(b, f, time.Hour)
	s.Get(context.Background(), false)

	s.Reset()
	if res := s.Get(context.Background(), false); res.Source != FromSnapshot {
		t.Errorf("after Reset: got %s, want snapshot", res.Source)
	}

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.SnapshotTime(); ok {
		t.Error("snapshot should be gone after Clear")
	}
	if res := s.Get(context.Background(), false); res.Source != Fetched || f.calls.Load() != 2 {
		t.Errorf("after Clear: %+v (fetches %d)", res, f.calls.Load())
	}
}

func TestStoreSharedMemoryKeyedByName(t *testing.T) {
	mem := NewMemory()
	fa := &countingFetch{value: map[string]float64{"a": 1}}
	fb := &countingFetch{value: map[string]float64{"b": 2}}
	a := NewStore(StoreOptions[map[string]float64]{Name: "a", TTL: time.Hour, Fetch: fa.fetch, Memory: mem})
	b := NewStore(StoreOptions[map[string]float64]{Name: "b", TTL: time.Hour, Fetch: fb.fetch, Memory: mem})

	if v := a.Get(context.Background(), false).Value; v["a"] != 1 {
		t.Errorf("store a: %v", v)
	}
	if v := b.Get(context.Background(), false).Value; v["b"] != 2 {
		t.Errorf("store b: %v", v)
	}
	a.Reset()
	if res := b.Get(context.Background(), false); res.Source != FromMemory {
		t.Errorf("resetting a affected b: %s", res.Source)
	}
}

// ── concurrency ──

func TestStoreConcurrentGetsCollapse(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	s := NewStore(StoreOptions[map[string]float64]{
		Name: "market",
		TTL:  time.Hour,
		Fetch: func(ctx context.Context) (map[string]float64, error) {
			calls.Add(1)
			<-release
			return map[string]float64{"1306": 1}, nil
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Get(context.Background(), false)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("fetches: got %d, want 1", got)
	}
}

// ── Outcome ──

func TestOutcomeStrings(t *testing.T) {
	tests := []struct {
		o    Outcome
		want string
	}{
		{FromMemory, "memory"},
		{FromSnapshot, "snapshot"},
		{Fetched, "fetched"},
		{StaleOnFailure, "stale"},
		{EmptyOnFailure, "empty"},
		{Outcome(42), "Outcome(42)"},
	}
	for _, tc := range tests {
		if got := tc.o.String(); got != tc.want {
			t.Errorf("%d.String(): got %q, want %q", int(tc.o), got, tc.want)
		}
	}
	if FromMemory.Degraded() || Fetched.Degraded() || !EmptyOnFailure.Degraded() {
		t.Error("Degraded() mismatch")
	}
}
