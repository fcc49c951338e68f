package infra

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	jsoniter "github.com/json-iterator/go"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/seenimoa/jpxetf/internal/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Outcome says where a Store result came from.
type Outcome int

const (
	// FromMemory: the process-memory tier already held a value.
	FromMemory Outcome = iota
	// FromSnapshot: a persisted snapshot within TTL was adopted.
	FromSnapshot
	// Fetched: a live fetch succeeded and replaced the value.
	Fetched
	// StaleOnFailure: the live fetch failed; the previous in-memory value is returned unchanged.
	StaleOnFailure
	// EmptyOnFailure: the live fetch failed with nothing in memory; an empty value is returned
	// and cached unless the caller's context was cancelled.
	EmptyOnFailure
)

func (o Outcome) String() string {
	switch o {
	case FromMemory:
		return "memory"
	case FromSnapshot:
		return "snapshot"
	case Fetched:
		return "fetched"
	case StaleOnFailure:
		return "stale"
	case EmptyOnFailure:
		return "empty"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// MarshalText lets outcomes appear by name in JSON and YAML output.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Degraded reports whether the value was produced after a failed fetch.
func (o Outcome) Degraded() bool {
	return o == StaleOnFailure || o == EmptyOnFailure
}

// Result is a Store lookup. Err is set only for degraded outcomes and is
// informational: Value is always usable.
type Result[T any] struct {
	Value  T
	Source Outcome
	Err    error
}

// FetchFunc performs one live fetch and parse.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// StoreOptions configures a Store.
type StoreOptions[T any] struct {
	Name  string        // snapshot file stem and memory key
	TTL   time.Duration // snapshot freshness window
	Fetch FetchFunc[T]

	Backend Backend        // nil disables snapshots
	Clock   Clock          // nil uses SystemClock
	Memory  *gocache.Cache // shared memory tier; nil creates a private one
	Empty   func() T       // value cached after a cold failure; nil uses the zero value
	Log     logrus.FieldLogger
}

// Store is a two-tier lookup-or-refresh cache for one data source:
// process memory first, then a persisted snapshot, then a live fetch.
// Concurrent loads of the same store are collapsed into one.
type Store[T any] struct {
	name    string
	ttl     time.Duration
	fetch   FetchFunc[T]
	backend Backend
	clock   Clock
	mem     *gocache.Cache
	empty   func() T
	log     logrus.FieldLogger
	group   singleflight.Group
}

// NewStore creates a Store.
func NewStore[T any](opts StoreOptions[T]) *Store[T] {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Memory == nil {
		opts.Memory = NewMemory()
	}
	return &Store[T]{
		name:    opts.Name,
		ttl:     opts.TTL,
		fetch:   opts.Fetch,
		backend: opts.Backend,
		clock:   opts.Clock,
		mem:     opts.Memory,
		empty:   opts.Empty,
		log:     logger.OrDiscard(opts.Log).WithField("cache", opts.Name),
	}
}

// NewMemory creates a memory tier whose entries never expire; staleness is
// decided by snapshot timestamps, not by the memory tier.
func NewMemory() *gocache.Cache {
	return gocache.New(gocache.NoExpiration, 0)
}

// Name returns the store name.
func (s *Store[T]) Name() string { return s.name }

// TTL returns the snapshot freshness window.
func (s *Store[T]) TTL() time.Duration { return s.ttl }

// Get returns the cached value, loading it if needed. With refresh set the
// memory and snapshot tiers are skipped and a live fetch is always made.
func (s *Store[T]) Get(ctx context.Context, refresh bool) Result[T] {
	if !refresh {
		if v, ok := s.memory(); ok {
			return Result[T]{Value: v, Source: FromMemory}
		}
	}

	key := "load"
	if refresh {
		key = "refresh"
	}
	v, _, _ := s.group.Do(key, func() (any, error) {
		return s.load(ctx, refresh), nil
	})
	return v.(Result[T])
}

// Reset drops the in-memory value. The snapshot is left in place.
func (s *Store[T]) Reset() {
	s.mem.Delete(s.name)
}

// Clear drops the in-memory value and deletes the snapshot.
func (s *Store[T]) Clear() error {
	s.Reset()
	if s.backend == nil {
		return nil
	}
	return s.backend.Remove(s.name)
}

// SnapshotTime returns the timestamp of the persisted snapshot, if a
// readable one exists.
func (s *Store[T]) SnapshotTime() (time.Time, bool) {
	snap, ok := s.readSnapshot()
	if !ok {
		return time.Time{}, false
	}
	return fromEpoch(snap.Timestamp), true
}

func (s *Store[T]) load(ctx context.Context, refresh bool) Result[T] {
	if !refresh {
		// Another caller may have filled memory while we waited.
		if v, ok := s.memory(); ok {
			return Result[T]{Value: v, Source: FromMemory}
		}
		if snap, ok := s.readSnapshot(); ok && s.fresh(snap.Timestamp) {
			s.setMemory(snap.Payload)
			s.log.Debug("adopted snapshot")
			return Result[T]{Value: snap.Payload, Source: FromSnapshot}
		}
	}

	v, err := s.fetch(ctx)
	if err != nil {
		if stale, ok := s.memory(); ok {
			s.log.WithError(err).Warn("refresh failed, keeping previous value")
			return Result[T]{Value: stale, Source: StaleOnFailure, Err: err}
		}
		empty := s.emptyValue()
		// A cancelled caller says nothing about the upstream; leave memory
		// unset so the next Get fetches again.
		if ctx.Err() == nil {
			s.setMemory(empty)
		}
		s.log.WithError(err).Warn("fetch failed, using empty value")
		return Result[T]{Value: empty, Source: EmptyOnFailure, Err: err}
	}

	s.setMemory(v)
	s.writeSnapshot(v)
	return Result[T]{Value: v, Source: Fetched}
}

func (s *Store[T]) memory() (T, bool) {
	if v, ok := s.mem.Get(s.name); ok {
		if typed, ok := v.(T); ok {
			return typed, true
		}
	}
	var zero T
	return zero, false
}

func (s *Store[T]) setMemory(v T) {
	s.mem.Set(s.name, v, gocache.NoExpiration)
}

func (s *Store[T]) emptyValue() T {
	if s.empty != nil {
		return s.empty()
	}
	var zero T
	return zero
}

func (s *Store[T]) fresh(ts float64) bool {
	age := s.clock.Now().Sub(fromEpoch(ts))
	return age < s.ttl
}

// snapshot is the persisted record: seconds since the epoch plus the payload.
type snapshot[T any] struct {
	Timestamp float64 `json:"timestamp"`
	Payload   T       `json:"payload"`
}

func (s *Store[T]) readSnapshot() (snapshot[T], bool) {
	var snap snapshot[T]
	if s.backend == nil {
		return snap, false
	}
	data, err := s.backend.Read(s.name)
	if err != nil {
		if !errors.Is(err, ErrNoSnapshot) {
			s.log.WithError(err).Debug("snapshot unreadable")
		}
		return snap, false
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		s.log.WithError(err).Debug("snapshot corrupt")
		return snapshot[T]{}, false
	}
	if snap.Timestamp <= 0 || math.IsNaN(snap.Timestamp) || math.IsInf(snap.Timestamp, 0) {
		s.log.Debug("snapshot has no timestamp")
		return snapshot[T]{}, false
	}
	return snap, true
}

func (s *Store[T]) writeSnapshot(v T) {
	if s.backend == nil {
		return
	}
	data, err := json.Marshal(snapshot[T]{Timestamp: toEpoch(s.clock.Now()), Payload: v})
	if err != nil {
		s.log.WithError(err).Debug("snapshot encode failed")
		return
	}
	if err := s.backend.Write(s.name, data); err != nil {
		s.log.WithError(err).Debug("snapshot write failed")
	}
}

func toEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromEpoch(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9))
}
