package payment

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"vpsbot/internal/apperr"
)

var errDuplicateRef = fmt.Errorf("reference already pending: %w", apperr.ErrConflict)

// Table is the set of pending intents plus the offsets they hold per
// nominal amount. All access goes through one mutex.
type Table struct {
	mu      sync.Mutex
	intents map[string]*Intent
	offsets map[int64]map[int64]int
}

func NewTable() *Table {
	return &Table{
		intents: make(map[string]*Intent),
		offsets: make(map[int64]map[int64]int),
	}
}

// Reserve picks an offset in [MinOffset, MaxOffset] that no pending intent
// for requested holds. pick(n) must return a value in [0, n).
func (t *Table) Reserve(requested int64, pick func(n int) int) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	held := t.offsets[requested]
	free := make([]int64, 0, MaxOffset)
	for o := int64(MinOffset); o <= MaxOffset; o++ {
		if held[o] == 0 {
			free = append(free, o)
		}
	}
	if len(free) == 0 {
		return 0, ErrOffsetsExhausted
	}

	o := free[pick(len(free))]
	t.hold(requested, o)
	return o, nil
}

func (t *Table) Release(requested, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.release(requested, offset)
}

// Add inserts a pending intent whose offset was obtained from Reserve.
func (t *Table) Add(in *Intent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.intents[in.Ref]; ok {
		return errDuplicateRef
	}
	cp := *in
	t.intents[in.Ref] = &cp
	return nil
}

// Adopt inserts a pending intent loaded from storage and takes its offset
// without checking availability.
func (t *Table) Adopt(in *Intent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.intents[in.Ref]; ok {
		return errDuplicateRef
	}
	cp := *in
	t.intents[in.Ref] = &cp
	t.hold(in.Requested, in.Offset())
	return nil
}

// Claim removes ref from the pending set and frees its offset. Only one
// caller can claim a given ref.
func (t *Table) Claim(ref string) (Intent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	in, ok := t.intents[ref]
	if !ok {
		return Intent{}, false
	}
	delete(t.intents, ref)
	t.release(in.Requested, in.Offset())
	return *in, true
}

func (t *Table) Get(ref string) (Intent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	in, ok := t.intents[ref]
	if !ok {
		return Intent{}, false
	}
	return *in, true
}

// Snapshot returns the pending intents oldest first.
func (t *Table) Snapshot() []Intent {
	t.mu.Lock()
	out := make([]Intent, 0, len(t.intents))
	for _, in := range t.intents {
		out = append(out, *in)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Ref < out[j].Ref
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// TakeExpired removes and returns every intent past its TTL at now.
func (t *Table) TakeExpired(now time.Time) []Intent {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Intent
	for ref, in := range t.intents {
		if in.Expired(now) {
			out = append(out, *in)
			delete(t.intents, ref)
			t.release(in.Requested, in.Offset())
		}
	}
	return out
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.intents)
}

// OffsetsHeld is the number of offsets currently held for requested.
func (t *Table) OffsetsHeld(requested int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.offsets[requested])
}

func (t *Table) hold(requested, offset int64) {
	held := t.offsets[requested]
	if held == nil {
		held = make(map[int64]int)
		t.offsets[requested] = held
	}
	held[offset]++
}

func (t *Table) release(requested, offset int64) {
	held := t.offsets[requested]
	if held == nil {
		return
	}
	if held[offset] <= 1 {
		delete(held, offset)
	} else {
		held[offset]--
	}
	if len(held) == 0 {
		delete(t.offsets, requested)
	}
}
