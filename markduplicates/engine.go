package markduplicates

import (
	"fmt"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
)

// pendingEntry is a duplicate whose mate has not been visited yet. It
// is ordered by the start position at which the mate is expected, and
// then by name.
type pendingEntry struct {
	mateStart int
	name      string
}

// Compare compares two pendingEntry objects for use in llrb.
func (e pendingEntry) Compare(c2 llrb.Comparable) int {
	e2 := c2.(pendingEntry)
	if diff := e.mateStart - e2.mateStart; diff != 0 {
		return diff
	}
	switch {
	case e.name < e2.name:
		return -1
	case e.name > e2.name:
		return 1
	}
	return 0
}

// EngineState is the bookkeeping of one pass over a coordinate-sorted
// stream. It is only valid for the current (contig, start) window:
// positionMateStarts is cleared whenever the start changes, and
// pendingDuplicates is cleared whenever the contig changes.
type EngineState struct {
	hasContig    bool
	currentRef   string
	currentStart int

	// positionMateStarts holds the mate starts of the non-duplicate
	// records seen at the current position.
	positionMateStarts map[int]struct{}

	// pendingDuplicates maps a query name to the mate start that
	// marked it. byMateStart indexes the same entries by mate start
	// so that entries the stream has moved past can be expired.
	pendingDuplicates map[string]int
	byMateStart       llrb.Tree
}

func newEngineState() EngineState {
	return EngineState{
		currentStart:       -1,
		positionMateStarts: make(map[int]struct{}),
		pendingDuplicates:  make(map[string]int),
	}
}

// EngineStats describes how much state the engine needed.
type EngineStats struct {
	// PeakPositionMateStarts is the largest number of distinct mate
	// starts held for one position.
	PeakPositionMateStarts int
	// PeakPendingDuplicates is the largest number of duplicates that
	// were waiting for their mate at the same time.
	PeakPendingDuplicates int
	// OrphanedDuplicates is the number of duplicates whose mate was
	// never found at the expected position.
	OrphanedDuplicates int
}

// Engine classifies the primary alignments of a coordinate-sorted
// stream as unique or duplicate. Two pairs are duplicates when both
// reads of each pair start at the same positions; nothing else about
// the reads is considered. Not thread safe.
type Engine struct {
	removeDups    bool
	clearExisting bool
	state         EngineState
	stats         EngineStats
}

// NewEngine creates an Engine. If removeDups is set, Process reports
// that duplicates should be dropped instead of kept. If clearExisting
// is set, the duplicate flag and tags left on a primary alignment by an
// earlier marking pass are cleared before it is classified.
func NewEngine(removeDups, clearExisting bool) *Engine {
	return &Engine{
		removeDups:    removeDups,
		clearExisting: clearExisting,
		state:         newEngineState(),
	}
}

// Stats returns the engine statistics collected so far.
func (e *Engine) Stats() EngineStats {
	return e.stats
}

// Process classifies r, setting its duplicate flag when it is a
// duplicate, and returns whether r should be emitted. Records must be
// passed in coordinate order; out-of-order input yields wrong flags,
// not an error.
func (e *Engine) Process(r *sam.Record) (bool, error) {
	if !isPrimary(r) || !isPlaced(r) {
		return true, nil
	}
	if r.Pos < 0 {
		return false, errors.E(errors.Invalid,
			fmt.Sprintf("markduplicates: record %s on %s has negative position %d", r.Name, r.Ref.Name(), r.Pos))
	}
	if e.clearExisting {
		clearDupFlagTags(r)
	}
	e.advance(r.Ref.Name(), r.Pos)

	s := &e.state
	duplicate := false
	mate := mateStart(r)
	if expected, ok := s.pendingDuplicates[r.Name]; ok && expected == r.Pos {
		// Second read of a pair that was marked when its mate was seen.
		duplicate = true
		e.deletePending(r.Name, expected)
	} else if mate != noMateStart && mate > r.Pos && s.hasMateStart(mate) {
		duplicate = true
		e.insertPending(r.Name, mate)
	} else if mate != noMateStart {
		s.positionMateStarts[mate] = struct{}{}
		if n := len(s.positionMateStarts); n > e.stats.PeakPositionMateStarts {
			e.stats.PeakPositionMateStarts = n
		}
	}

	if duplicate {
		r.Flags |= sam.Duplicate
		return !e.removeDups, nil
	}
	return true, nil
}

// Finish reports the duplicates that are still waiting for their mate.
// It should be called once after the last record.
func (e *Engine) Finish() {
	e.orphan(len(e.state.pendingDuplicates))
	e.state = newEngineState()
}

func (s *EngineState) hasMateStart(pos int) bool {
	_, ok := s.positionMateStarts[pos]
	return ok
}

// advance moves the window to (ref, pos), resetting whatever state the
// move invalidates.
func (e *Engine) advance(ref string, pos int) {
	s := &e.state
	switch {
	case !s.hasContig || ref != s.currentRef:
		e.orphan(len(s.pendingDuplicates))
		*s = newEngineState()
		s.hasContig = true
		s.currentRef = ref
	case pos != s.currentStart:
		for k := range s.positionMateStarts {
			delete(s.positionMateStarts, k)
		}
		e.expirePending(pos)
	}
	s.currentStart = pos
}

func (e *Engine) insertPending(name string, mate int) {
	s := &e.state
	if old, ok := s.pendingDuplicates[name]; ok {
		s.byMateStart.Delete(pendingEntry{old, name})
	}
	s.pendingDuplicates[name] = mate
	s.byMateStart.Insert(pendingEntry{mate, name})
	if n := len(s.pendingDuplicates); n > e.stats.PeakPendingDuplicates {
		e.stats.PeakPendingDuplicates = n
	}
}

func (e *Engine) deletePending(name string, mate int) {
	s := &e.state
	delete(s.pendingDuplicates, name)
	s.byMateStart.Delete(pendingEntry{mate, name})
}

// expirePending drops the pending duplicates whose mate should have
// started before pos. No record at or after pos can match them.
func (e *Engine) expirePending(pos int) {
	s := &e.state
	for s.byMateStart.Len() > 0 {
		min := s.byMateStart.Min().(pendingEntry)
		if min.mateStart >= pos {
			break
		}
		log.Debug.Printf("mate of duplicate %s not found at %s:%d", min.name, s.currentRef, min.mateStart)
		s.byMateStart.DeleteMin()
		delete(s.pendingDuplicates, min.name)
		e.orphan(1)
	}
}

func (e *Engine) orphan(n int) {
	e.stats.OrphanedDuplicates += n
}
