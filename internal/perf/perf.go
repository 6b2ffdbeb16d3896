// Package perf implements the in-memory per-isolate performance accounting
// buckets described in spec.md §4.13: requests, accumulations, actions and
// records, each keyed by an id/key pair, with an atomic snapshot-and-clear
// on flush. Grounded directly on the teacher's pkg/content/errors.go
// ErrorStats (a mutex-guarded counters struct with a RecordError method and
// a value-copy accessor) and pkg/content/types.go's ContentStats snapshot
// shape — this is the teacher's own idiom for exactly this concern, so no
// third-party metrics library is substituted (see DESIGN.md).
package perf

import (
	"sync"
	"time"
)

// RequestItem is one completed request observation (spec.md §4.13
// "requests[id] -> [PerfRequestItem{time, spend_time, err, stat}]").
type RequestItem struct {
	Time      time.Time
	SpendTime time.Duration
	Err       string // empty on success
	Stat      int64  // caller-supplied byte count or other magnitude
}

// Accumulation is a running total keyed by name (e.g. bytes transferred).
type Accumulation struct {
	Count int64
	Total int64
}

// Action is a simple named occurrence counter (e.g. "cache_hit").
type Action struct {
	Count int64
}

// Record is a free-form (total, total_size) pair for bucket-style counters
// that don't fit Accumulation's running-sum shape (spec.md §4.13 "records").
type Record struct {
	Total     int64
	TotalSize int64
}

// pending tracks an in-flight BeginRequest call awaiting its EndRequest.
type pending struct {
	start time.Time
}

// Isolate is one per-isolate bucket set. The zero value is not usable; use
// New.
type Isolate struct {
	mu sync.Mutex

	requests      map[string][]RequestItem
	accumulations map[string]Accumulation
	actions       map[string]Action
	records       map[string]Record

	inflight map[string]pending

	now func() time.Time
}

// New returns an empty Isolate.
func New() *Isolate {
	return &Isolate{
		requests:      make(map[string][]RequestItem),
		accumulations: make(map[string]Accumulation),
		actions:       make(map[string]Action),
		records:       make(map[string]Record),
		inflight:      make(map[string]pending),
		now:           time.Now,
	}
}

func bucketKey(id, key string) string { return id + "\x00" + key }

// BeginRequest records the start tick for (id, key) (spec.md §4.13).
// Calling it again for the same (id, key) before EndRequest overwrites the
// prior start time — a new attempt supersedes an abandoned one.
func (p *Isolate) BeginRequest(id, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight[bucketKey(id, key)] = pending{start: p.now()}
}

// EndRequest computes elapsed time since the matching BeginRequest and
// appends a RequestItem under id. errMsg is empty on success. If
// BeginRequest was never called for this (id, key), SpendTime is zero.
func (p *Isolate) EndRequest(id, key string, errMsg string, stat int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bk := bucketKey(id, key)
	var spend time.Duration
	now := p.now()
	if pend, ok := p.inflight[bk]; ok {
		spend = now.Sub(pend.start)
		delete(p.inflight, bk)
	}
	p.requests[id] = append(p.requests[id], RequestItem{
		Time:      now,
		SpendTime: spend,
		Err:       errMsg,
		Stat:      stat,
	})
}

// Acc adds delta to the running total for name (spec.md §4.13
// "accumulations").
func (p *Isolate) Acc(name string, delta int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.accumulations[name]
	a.Count++
	a.Total += delta
	p.accumulations[name] = a
}

// Action increments the named action counter (spec.md §4.13 "actions").
func (p *Isolate) Action(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.actions[name]
	a.Count++
	p.actions[name] = a
}

// Record sets/accumulates a (total, total_size) pair under name (spec.md
// §4.13 "records").
func (p *Isolate) Record(name string, total, totalSize int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.records[name]
	r.Total += total
	r.TotalSize += totalSize
	p.records[name] = r
}

// Snapshot is the flushed, point-in-time copy returned by TakeData.
type Snapshot struct {
	Requests      map[string][]RequestItem
	Accumulations map[string]Accumulation
	Actions       map[string]Action
	Records       map[string]Record
}

// TakeData atomically swaps out the accumulated state for flushing (spec.md
// §4.13 "take_data() atomically swaps out the accumulated state"), leaving
// the Isolate empty for the next collection window. In-flight BeginRequest
// entries without a matching EndRequest survive the swap (they are not yet
// a completed observation).
func (p *Isolate) TakeData() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := Snapshot{
		Requests:      p.requests,
		Accumulations: p.accumulations,
		Actions:       p.actions,
		Records:       p.records,
	}
	p.requests = make(map[string][]RequestItem)
	p.accumulations = make(map[string]Accumulation)
	p.actions = make(map[string]Action)
	p.records = make(map[string]Record)
	return snap
}
