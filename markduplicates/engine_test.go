package markduplicates

import (
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
)

var (
	chr1, _   = sam.NewReference("chr1", "", "", 1000, nil, nil)
	chr2, _   = sam.NewReference("chr2", "", "", 2000, nil, nil)
	header, _ = sam.NewHeader(nil, []*sam.Reference{chr1, chr2})

	r1F = sam.Paired | sam.Read1
	r2R = sam.Paired | sam.Read2 | sam.Reverse
	s1F = sam.Paired | sam.Read1 | sam.MateUnmapped
	u1  = sam.Paired | sam.Read1 | sam.Unmapped
	sec = sam.Paired | sam.Read1 | sam.Secondary
	sup = sam.Paired | sam.Read1 | sam.Supplementary
)

func init() {
	header.SortOrder = sam.Coordinate
}

// process runs recs through e and returns, for each record, whether it
// was kept and whether it carries the duplicate flag.
func process(t *testing.T, e *Engine, recs []*sam.Record) (keep, dup []bool) {
	for _, r := range recs {
		k, err := e.Process(r)
		assert.NoError(t, err)
		keep = append(keep, k)
		dup = append(dup, r.Flags&sam.Duplicate != 0)
	}
	return keep, dup
}

func TestEngineMarksBothReadsOfDuplicatePair(t *testing.T) {
	a1, a2 := NewPair("A", chr1, 100, 200)
	b1, b2 := NewPair("B", chr1, 100, 200)
	c1, c2 := NewPair("C", chr1, 100, 300)

	e := NewEngine(false, false)
	keep, dup := process(t, e, []*sam.Record{a1, b1, c1, a2, b2, c2})
	assert.Equal(t, []bool{false, true, false, false, true, false}, dup)
	assert.Equal(t, []bool{true, true, true, true, true, true}, keep)
	assert.Equal(t, 0, len(e.state.pendingDuplicates))
	assert.Equal(t, 0, e.state.byMateStart.Len())
	assert.Equal(t, EngineStats{PeakPositionMateStarts: 2, PeakPendingDuplicates: 1}, e.Stats())
}

func TestEngineSinglePair(t *testing.T) {
	a1, a2 := NewPair("A", chr1, 10, 50)
	e := NewEngine(false, false)
	_, dup := process(t, e, []*sam.Record{a1, a2})
	assert.Equal(t, []bool{false, false}, dup)
}

func TestEngineThreeCopies(t *testing.T) {
	a1, a2 := NewPair("A", chr1, 10, 50)
	b1, b2 := NewPair("B", chr1, 10, 50)
	c1, c2 := NewPair("C", chr1, 10, 50)
	e := NewEngine(false, false)
	_, dup := process(t, e, []*sam.Record{a1, b1, c1, a2, c2, b2})
	assert.Equal(t, []bool{false, true, true, false, true, true}, dup)
	assert.Equal(t, 2, e.Stats().PeakPendingDuplicates)
}

func TestEngineSameStartPairsAreNotMarked(t *testing.T) {
	// Only the leftmost read can detect a duplicate, so pairs whose
	// reads share a start are never marked.
	a1, a2 := NewPair("A", chr1, 100, 100)
	b1, b2 := NewPair("B", chr1, 100, 100)
	e := NewEngine(false, false)
	_, dup := process(t, e, []*sam.Record{a1, a2, b1, b2})
	assert.Equal(t, []bool{false, false, false, false}, dup)
}

func TestEngineBackwardMateIsNotEvidence(t *testing.T) {
	// Two reads at 200 with their mates at 100, but the mates were not
	// seen: the reads are not duplicates.
	x := NewRecord("X", chr1, 200, r2R, 100, chr1)
	y := NewRecord("Y", chr1, 200, r2R, 100, chr1)
	e := NewEngine(false, false)
	_, dup := process(t, e, []*sam.Record{x, y})
	assert.Equal(t, []bool{false, false}, dup)
}

func TestEngineSecondaryPassThrough(t *testing.T) {
	a1, a2 := NewPair("A", chr1, 100, 200)
	s := NewRecord("S", chr1, 100, sec, 200, chr1)
	x := NewRecord("X", chr1, 100, sup, 200, chr1)
	flagged := NewRecord("F", chr1, 100, sec|sam.Duplicate, 200, chr1)

	// With clear-existing, primary flags are cleared but the
	// secondary stays as it was.
	e := NewEngine(true, true)
	keep, dup := process(t, e, []*sam.Record{a1, s, x, flagged, a2})
	assert.Equal(t, []bool{false, false, false, true, false}, dup)
	assert.Equal(t, []bool{true, true, true, true, true}, keep)
	// Only A1 contributed a mate start.
	assert.Equal(t, 1, e.Stats().PeakPositionMateStarts)
}

func TestEngineSecondaryDoesNotMoveWindow(t *testing.T) {
	a1, a2 := NewPair("A", chr1, 100, 200)
	b1, b2 := NewPair("B", chr1, 100, 200)
	// A secondary alignment on another contig between a1 and b1 must
	// not reset the state.
	s := NewRecord("S", chr2, 5, sec, 200, chr1)
	e := NewEngine(false, false)
	_, dup := process(t, e, []*sam.Record{a1, s, b1, a2, b2})
	assert.Equal(t, []bool{false, false, true, false, true}, dup)
}

func TestEngineUnmappedPassThrough(t *testing.T) {
	a1, a2 := NewPair("A", chr1, 100, 200)
	b1, b2 := NewPair("B", chr1, 100, 200)
	placed := NewRecord("U", chr1, 100, u1, 100, chr1)
	unplaced := NewRecord("V", nil, -1, u1, -1, nil)
	e := NewEngine(true, false)
	keep, dup := process(t, e, []*sam.Record{a1, placed, b1, a2, b2, unplaced})
	assert.Equal(t, []bool{false, false, true, false, true, false}, dup)
	assert.Equal(t, []bool{true, true, false, true, false, true}, keep)
}

func TestEngineMateUnmappedIsNeverDuplicate(t *testing.T) {
	x := NewRecord("X", chr1, 100, s1F, 100, chr1)
	y := NewRecord("Y", chr1, 100, s1F, 100, chr1)
	z := NewRecord("Z", chr1, 100, 0, -1, nil)
	w := NewRecord("W", chr1, 100, 0, -1, nil)
	e := NewEngine(false, false)
	_, dup := process(t, e, []*sam.Record{x, y, z, w})
	assert.Equal(t, []bool{false, false, false, false}, dup)
	assert.Equal(t, 0, e.Stats().PeakPositionMateStarts)
}

func TestEngineContigChange(t *testing.T) {
	a1, a2 := NewPair("A", chr1, 100, 200)
	b1 := NewRecord("B", chr1, 100, r1F, 200, chr1)
	// B's mate is missing on chr1. A read named B at 200 on chr2 must
	// not be taken for it, and chr1's mate starts must not leak.
	x1, x2 := NewPair("X", chr2, 100, 200)
	bOther := NewRecord("B", chr2, 200, r2R, 100, chr2)

	e := NewEngine(false, false)
	_, dup := process(t, e, []*sam.Record{a1, b1, a2, x1, x2, bOther})
	assert.Equal(t, []bool{false, true, false, false, false, false}, dup)
	assert.Equal(t, 1, e.Stats().OrphanedDuplicates)
}

func TestEngineExpiresPassedPendingDuplicates(t *testing.T) {
	a1 := NewRecord("A", chr1, 100, r1F, 200, chr1)
	b1 := NewRecord("B", chr1, 100, r1F, 200, chr1)
	c1 := NewRecord("C", chr1, 100, r1F, 300, chr1)
	d1 := NewRecord("D", chr1, 100, r1F, 300, chr1)
	// The mates at 200 never arrive.
	c2 := NewRecord("C", chr1, 300, r2R, 100, chr1)
	d2 := NewRecord("D", chr1, 300, r2R, 100, chr1)

	e := NewEngine(false, false)
	_, dup := process(t, e, []*sam.Record{a1, b1, c1, d1})
	assert.Equal(t, []bool{false, true, false, true}, dup)
	assert.Equal(t, 2, len(e.state.pendingDuplicates))

	_, dup = process(t, e, []*sam.Record{c2})
	assert.Equal(t, []bool{false}, dup)
	// B's entry expired when the window moved past 200.
	assert.Equal(t, map[string]int{"D": 300}, e.state.pendingDuplicates)
	assert.Equal(t, 1, e.Stats().OrphanedDuplicates)

	_, dup = process(t, e, []*sam.Record{d2})
	assert.Equal(t, []bool{true}, dup)
	e.Finish()
	assert.Equal(t, 1, e.Stats().OrphanedDuplicates)
}

func TestEngineStateIsScopedToPosition(t *testing.T) {
	a1 := NewRecord("A", chr1, 100, r1F, 200, chr1)
	b1 := NewRecord("B", chr1, 100, r1F, 300, chr1)
	c1 := NewRecord("C", chr1, 150, r1F, 400, chr1)
	d1 := NewRecord("D", chr2, 150, r1F, 500, chr2)

	e := NewEngine(false, false)
	process(t, e, []*sam.Record{a1, b1})
	assert.Equal(t, map[int]struct{}{200: {}, 300: {}}, e.state.positionMateStarts)
	process(t, e, []*sam.Record{c1})
	assert.Equal(t, map[int]struct{}{400: {}}, e.state.positionMateStarts)
	process(t, e, []*sam.Record{d1})
	assert.Equal(t, map[int]struct{}{500: {}}, e.state.positionMateStarts)
	assert.Equal(t, "chr2", e.state.currentRef)
	assert.Equal(t, 150, e.state.currentStart)
}

func TestEngineRemoveDups(t *testing.T) {
	a1, a2 := NewPair("A", chr1, 100, 200)
	b1, b2 := NewPair("B", chr1, 100, 200)
	e := NewEngine(true, false)
	keep, dup := process(t, e, []*sam.Record{a1, b1, a2, b2})
	assert.Equal(t, []bool{false, true, false, true}, dup)
	assert.Equal(t, []bool{true, false, true, false}, keep)
}

func TestEngineClearExisting(t *testing.T) {
	a1, a2 := NewPair("A", chr1, 100, 200)
	a1.Flags |= sam.Duplicate
	a1.AuxFields = sam.AuxFields{NewAux("DI", "0"), NewAux("RG", "rg1")}

	e := NewEngine(false, true)
	_, dup := process(t, e, []*sam.Record{a1, a2})
	assert.Equal(t, []bool{false, false}, dup)
	assert.Equal(t, sam.AuxFields{NewAux("RG", "rg1")}, a1.AuxFields)

	// Without clear-existing the input flag survives.
	b1, b2 := NewPair("B", chr1, 100, 200)
	b1.Flags |= sam.Duplicate
	e = NewEngine(false, false)
	_, dup = process(t, e, []*sam.Record{b1, b2})
	assert.Equal(t, []bool{true, false}, dup)
}

func TestEngineMalformedRecord(t *testing.T) {
	r := NewRecord("A", chr1, -1, r1F, 200, chr1)
	e := NewEngine(false, false)
	_, err := e.Process(r)
	assert.Error(t, err)
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestEngineIgnoresQueryNames(t *testing.T) {
	build := func(names []string) []*sam.Record {
		p1a, p1b := NewPair(names[0], chr1, 10, 40)
		p2a, p2b := NewPair(names[1], chr1, 10, 40)
		p3a, p3b := NewPair(names[2], chr1, 10, 60)
		p4a, p4b := NewPair(names[3], chr1, 40, 60)
		p5a, p5b := NewPair(names[4], chr1, 40, 60)
		return []*sam.Record{p1a, p2a, p3a, p1b, p2b, p4a, p5a, p3b, p4b, p5b}
	}
	count := func(recs []*sam.Record) int {
		n := 0
		_, dup := process(t, NewEngine(false, false), recs)
		for _, d := range dup {
			if d {
				n++
			}
		}
		return n
	}
	expected := count(build([]string{"a", "b", "c", "d", "e"}))
	assert.Equal(t, 4, expected)
	assert.Equal(t, expected, count(build([]string{"read:9", "read:1", "x", "y", "zz"})))
}
