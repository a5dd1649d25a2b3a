package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusReady       Status = "ready"
	StatusConsumed    Status = "consumed"
	StatusInvalidated Status = "invalidated"
	StatusNone        Status = ""
)

type (
	// Snapshot is a copy of the inputs a pre-generation was dispatched with.
	// Two snapshots are interchangeable iff their hashes match; any material
	// change to the turn context (new exchange, changed directive, shifted
	// essence) changes the hash and invalidates buffered work.
	Snapshot struct {
		Speaker     string
		LastSeq     uint64
		Essence     string
		Instruction string
		System      string
		Prompt      string
	}

	// GenerateFunc produces a completion for a snapshot. The pipeline is the
	// only caller that runs it off the turn path; it never mutates shared
	// state from there.
	GenerateFunc func(ctx context.Context, snap Snapshot) (string, error)

	slot struct {
		snapshot Snapshot
		hash     string
		status   Status
		result   string
		done     chan struct{}
	}

	Metrics struct {
		Hits      uint64  `json:"hits"`
		Misses    uint64  `json:"misses"`
		HitRate   float64 `json:"hitRate"`
		Buffered  uint64  `json:"buffered"`
		Discarded uint64  `json:"discarded"`
	}

	// Pipeline overlaps next-turn generation with current-turn narration.
	// At most one live slot exists per speaker.
	Pipeline struct {
		mu       sync.Mutex
		logger   *slog.Logger
		generate GenerateFunc
		slots    map[string]*slot

		hits      uint64
		misses    uint64
		buffered  uint64
		discarded uint64
	}
)

func (s Snapshot) Hash() string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%s|%s|%s|%s",
		s.Speaker, s.LastSeq, s.Essence, s.Instruction, s.System, s.Prompt))
	return hex.EncodeToString(sum[:8])
}

func New(logger *slog.Logger, generate GenerateFunc) *Pipeline {
	return &Pipeline{
		logger:   logger,
		generate: generate,
		slots:    make(map[string]*slot),
	}
}

// Prefetch dispatches asynchronous generation for the speaker unless a live
// slot with the same snapshot already exists (idempotent no-op). A prior
// non-consumed slot is superseded immediately; its in-flight generation runs
// to completion but the result is discarded.
func (p *Pipeline) Prefetch(ctx context.Context, snap Snapshot) {
	hash := snap.Hash()

	p.mu.Lock()
	if cur, ok := p.slots[snap.Speaker]; ok && cur.live() {
		if cur.hash == hash {
			p.mu.Unlock()
			return
		}
		cur.status = StatusInvalidated
		p.discarded++
	}

	s := &slot{
		snapshot: snap,
		hash:     hash,
		status:   StatusPending,
		done:     make(chan struct{}),
	}
	p.slots[snap.Speaker] = s
	p.mu.Unlock()

	go p.run(ctx, s)
}

func (p *Pipeline) run(ctx context.Context, s *slot) {
	defer close(s.done)

	started := time.Now()
	text, err := p.generate(ctx, s.snapshot)

	p.mu.Lock()
	defer p.mu.Unlock()

	if s.status != StatusPending {
		// Superseded while generating; suppress the result.
		p.logger.Debug("discarding stale prefetch result",
			"speaker", s.snapshot.Speaker, "elapsed", time.Since(started))
		return
	}
	if err != nil {
		s.status = StatusInvalidated
		p.logger.Warn("prefetch generation failed, slot dropped",
			"speaker", s.snapshot.Speaker, "error", err)
		return
	}

	s.result = text
	s.status = StatusReady
	p.buffered++
	p.logger.Debug("response buffered",
		"speaker", s.snapshot.Speaker, "elapsed", time.Since(started))
}

// Request returns the speaker's next response. A ready slot whose snapshot
// still matches is consumed and returned immediately (a hit); anything else
// is a miss: live stale slots are invalidated and generation runs
// synchronously.
func (p *Pipeline) Request(ctx context.Context, snap Snapshot) (string, bool, error) {
	hash := snap.Hash()

	p.mu.Lock()
	if cur, ok := p.slots[snap.Speaker]; ok && cur.live() {
		if cur.status == StatusReady && cur.hash == hash {
			cur.status = StatusConsumed
			p.hits++
			text := cur.result
			p.mu.Unlock()
			return text, true, nil
		}
		cur.status = StatusInvalidated
		p.discarded++
	}
	p.misses++
	p.mu.Unlock()

	text, err := p.generate(ctx, snap)
	return text, false, err
}

// InvalidateIfStale invalidates the speaker's live slot when its snapshot no
// longer matches the current context hash. Immediate; never blocks on the
// in-flight generation.
func (p *Pipeline) InvalidateIfStale(speaker, currentHash string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.slots[speaker]; ok && cur.live() && cur.hash != currentHash {
		cur.status = StatusInvalidated
		p.discarded++
		return true
	}
	return false
}

// Invalidate unconditionally invalidates the speaker's live slot.
func (p *Pipeline) Invalidate(speaker string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.slots[speaker]; ok && cur.live() {
		cur.status = StatusInvalidated
		p.discarded++
		return true
	}
	return false
}

// SlotStatus reports the current status of the speaker's most recent slot.
func (p *Pipeline) SlotStatus(speaker string) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.slots[speaker]; ok {
		return cur.status
	}
	return StatusNone
}

// Wait blocks until the speaker's most recent prefetch settles. Test helper;
// the turn loop never waits on a pending slot.
func (p *Pipeline) Wait(speaker string) {
	p.mu.Lock()
	cur, ok := p.slots[speaker]
	p.mu.Unlock()
	if ok {
		<-cur.done
	}
}

// Metrics is informational only; it has no effect on control flow.
func (p *Pipeline) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := Metrics{
		Hits:      p.hits,
		Misses:    p.misses,
		Buffered:  p.buffered,
		Discarded: p.discarded,
	}
	if total := p.hits + p.misses; total > 0 {
		m.HitRate = float64(p.hits) / float64(total)
	}
	return m
}

func (s *slot) live() bool {
	return s.status == StatusPending || s.status == StatusReady
}
