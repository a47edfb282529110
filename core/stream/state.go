// Package stream implements the streaming engine: the three-phase
// subscription state machine that composes the cursor codec, filter
// compiler, source adapters, and block encoder into a single ordered,
// fork-aware response sequence.
package stream

import (
	"github.com/smartcontractkit/chainlink-firehose/core/chain"
)

// State is the in-memory, single-subscription stream state: the most
// recently emitted (hash, height), or unset if none yet. It is exclusively
// owned by its subscription's goroutine.
type State struct {
	last *chain.HashAndHeight
}

// NewState returns an unset State, for a fresh subscription with no
// resume cursor.
func NewState() *State {
	return &State{}
}

// NewStateFromCursor initializes State from a resume cursor's last block,
// so NextBlock resumes at cursor.last.height + 1. The cursor's own
// finalized field is discarded: cursors emitted after resuming carry last
// as their finalized half during phases A and B (see Cursor below), and the
// hot update's finalized head during phase C.
func NewStateFromCursor(c chain.Cursor) *State {
	last := c.Last
	return &State{last: &last}
}

// NextBlock is the height to fetch next: last.height+1, or 0 if unset.
func (s *State) NextBlock() uint64 {
	if s.last == nil {
		return 0
	}
	return s.last.Height + 1
}

// CurrentBlock is the most recently emitted height: last.height, or -1 if
// unset. Returned as int64 so the "unset" sentinel is representable.
func (s *State) CurrentBlock() int64 {
	if s.last == nil {
		return -1
	}
	return int64(s.last.Height)
}

// Update records value as the most recently emitted block.
func (s *State) Update(value chain.HashAndHeight) {
	s.last = &value
}

// Last returns the most recently emitted (hash, height). Only meaningful
// after at least one Update.
func (s *State) Last() chain.HashAndHeight {
	if s.last == nil {
		return chain.HashAndHeight{}
	}
	return *s.last
}

// Cursor builds the resume token for the current state. During phases A
// and B the finalized half of the cursor is the same block as last: the
// engine only has a distinct finalized head once phase C supplies
// HotUpdate.FinalizedHead, at which point callers pass that in directly
// instead of calling this method (see engine.go). Must only be called
// after at least one Update.
func (s *State) Cursor() chain.Cursor {
	last := s.Last()
	return chain.Cursor{Last: last, Finalized: last}
}
