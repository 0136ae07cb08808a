package bus

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// PendingTable holds the requests awaiting an acknowledge, keyed by id.
//
// The table is owned by the caller and handed to New, so independent buses never
// share retry state. It also issues request ids: ids are millisecond timestamps,
// bumped past the last issued id so they stay strictly increasing and never
// collide with a pending entry.
type PendingTable struct {
	mu      sync.Mutex
	entries map[int64]types.Message
	lastID  int64
}

// NewPendingTable creates an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{entries: make(map[int64]types.Message)}
}

// Allocate returns a fresh request id for now.
func (t *PendingTable) Allocate(now time.Time) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.allocateLocked(now)
}

func (t *PendingTable) allocateLocked(now time.Time) int64 {
	id := now.UnixMilli()
	if id <= t.lastID {
		id = t.lastID + 1
	}
	t.lastID = id

	return id
}

// insert allocates an id, builds the entry for it and stores it in one step.
func (t *PendingTable) insert(now time.Time, build func(id int64) types.Message) types.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg := build(t.allocateLocked(now))
	t.entries[msg.ID] = msg

	return msg
}

// Put stores msg under msg.ID, replacing any entry with the same id.
func (t *PendingTable) Put(msg types.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[msg.ID] = msg
}

// Remove deletes the entry with id and returns it.
func (t *PendingTable) Remove(id int64) (types.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}

	return msg, ok
}

// RemoveType deletes every entry of the given type and returns how many were removed.
func (t *PendingTable) RemoveType(msgType types.MessageType) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, msg := range t.entries {
		if msg.Type() == msgType {
			delete(t.entries, id)
			removed++
		}
	}

	return removed
}

// Get returns the entry with id.
func (t *PendingTable) Get(id int64) (types.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg, ok := t.entries[id]

	return msg, ok
}

// Replace overwrites an existing entry. It reports false when the entry is gone,
// which happens when an acknowledge raced with the retry pass.
func (t *PendingTable) Replace(msg types.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[msg.ID]; !ok {
		return false
	}
	t.entries[msg.ID] = msg

	return true
}

// Expired returns the entries whose ExpiresAt is at or before now, oldest id first.
func (t *PendingTable) Expired(now time.Time) []types.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []types.Message
	for _, msg := range t.entries {
		if !msg.ExpiresAt.After(now) {
			out = append(out, msg)
		}
	}
	sortByID(out)

	return out
}

// Snapshot returns a copy of every entry, oldest id first.
func (t *PendingTable) Snapshot() []types.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]types.Message, 0, len(t.entries))
	for _, msg := range t.entries {
		out = append(out, msg)
	}
	sortByID(out)

	return out
}

// Len returns the number of pending entries.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

func sortByID(msgs []types.Message) {
	slices.SortFunc(msgs, func(a, b types.Message) int {
		return cmp.Compare(a.ID, b.ID)
	})
}
