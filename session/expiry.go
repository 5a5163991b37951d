package session

import (
	"container/heap"
	"time"
)

// Kind names a record type in the expiry index and the persistence backend.
type Kind string

const (
	KindToken     Kind = "token"
	KindSession   Kind = "session"
	KindChain     Kind = "chain"
	KindBlacklist Kind = "blacklist"
	KindFamily    Kind = "family"
)

type deadline struct {
	at   time.Time
	kind Kind
	key  string
}

// expiryIndex is a min-heap of deadlines. Entries are never updated in place:
// a record whose deadline moved or that was removed early leaves a stale
// entry behind, which the sweep discards after re-checking the live record.
type expiryIndex []deadline

func (h expiryIndex) Len() int           { return len(h) }
func (h expiryIndex) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h expiryIndex) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *expiryIndex) Push(x any) { *h = append(*h, x.(deadline)) }

func (h *expiryIndex) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (h *expiryIndex) add(kind Kind, key string, at time.Time) {
	heap.Push(h, deadline{at: at, kind: kind, key: key})
}

// popDue removes and returns every entry with a deadline at or before now.
func (h *expiryIndex) popDue(now time.Time) []deadline {
	var due []deadline
	for h.Len() > 0 && !(*h)[0].at.After(now) {
		due = append(due, heap.Pop(h).(deadline))
	}
	return due
}
