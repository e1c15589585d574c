// Package dline tracks outstanding call deadlines in a red-black tree
// ordered by absolute expiry, so a broker with many concurrently
// outstanding CallWithDeadline calls can report "what's the nearest
// pending deadline" in O(log n) instead of scanning every call. It is a
// diagnostics aid, not the enforcement path: each call's own timer (via
// context.Context) is what actually fires a timeout — this set only
// powers health/metrics reporting.
package dline

import (
	"sync"
	"time"

	"github.com/twmb/go-rbtree"
)

// entry is the node type stored in the tree; it implements
// rbtree.Item so entries sort by deadline, falling back to a monotonic
// sequence number to break ties between identical deadlines.
type entry struct {
	deadline time.Time
	seq      uint64
	token    uint64
	label    string
}

func (e *entry) Less(other rbtree.Item) bool {
	o := other.(*entry)
	if e.deadline.Equal(o.deadline) {
		return e.seq < o.seq
	}
	return e.deadline.Before(o.deadline)
}

// Set tracks in-flight deadlines for one Broker.
type Set struct {
	mu      sync.Mutex
	tree    *rbtree.Tree
	bySeq   map[uint64]*rbtree.Node
	nextSeq uint64
	nextTok uint64
}

// New returns an empty deadline set.
func New() *Set {
	return &Set{tree: new(rbtree.Tree), bySeq: map[uint64]*rbtree.Node{}}
}

// Track registers a pending call's deadline under label (typically the
// Context's name) and returns a token to later Untrack it.
func (s *Set) Track(label string, deadline time.Time) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	s.nextTok++
	e := &entry{deadline: deadline, seq: s.nextSeq, token: s.nextTok, label: label}
	node := s.tree.Insert(e)
	s.bySeq[s.nextTok] = node
	return s.nextTok
}

// Untrack removes a previously-tracked deadline. Safe to call with a
// token that was already removed (e.g. the call already completed).
func (s *Set) Untrack(token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.bySeq[token]
	if !ok {
		return
	}
	delete(s.bySeq, token)
	s.tree.Delete(node)
}

// Stats summarises the currently outstanding deadlines.
type Stats struct {
	Pending      int
	NextDeadline time.Time
	NextLabel    string
}

// Snapshot reports the number of outstanding calls and the nearest
// deadline among them.
func (s *Set) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{Pending: len(s.bySeq)}
	if min := s.tree.Min(); min != nil {
		e := min.Item.(*entry)
		stats.NextDeadline = e.deadline
		stats.NextLabel = e.label
	}
	return stats
}
