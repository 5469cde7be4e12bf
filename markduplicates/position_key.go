package markduplicates

import (
	"fmt"

	"github.com/grailbio/hts/sam"
)

// noMateStart is the mate start of a record whose mate has no usable
// alignment position. It never equals a real position, and it is
// never stored as a position's mate start.
const noMateStart = -1

// positionKey is the duplicate signature of one read: its own start
// and the start of its mate. Two pairs are duplicates when both reads
// have equal keys on the same reference.
type positionKey struct {
	ref       string
	start     int
	mateStart int
}

func (k positionKey) String() string {
	if k.mateStart == noMateStart {
		return fmt.Sprintf("(%s,%d,*)", k.ref, k.start)
	}
	return fmt.Sprintf("(%s,%d,%d)", k.ref, k.start, k.mateStart)
}

func keyOf(r *sam.Record) positionKey {
	ref := "*"
	if r.Ref != nil {
		ref = r.Ref.Name()
	}
	return positionKey{ref: ref, start: r.Pos, mateStart: mateStart(r)}
}

// mateStart returns the 0-based start of r's mate, or noMateStart if r
// is unpaired, or its mate is unmapped or unplaced.
func mateStart(r *sam.Record) int {
	if r.Flags&sam.Paired == 0 || r.Flags&sam.MateUnmapped != 0 {
		return noMateStart
	}
	if r.MateRef == nil || r.MatePos < 0 {
		return noMateStart
	}
	return r.MatePos
}

// isPrimary returns false for secondary and supplementary alignments.
func isPrimary(r *sam.Record) bool {
	return r.Flags&(sam.Secondary|sam.Supplementary) == 0
}

// isPlaced returns true if r is a mapped read with a reference.
func isPlaced(r *sam.Record) bool {
	return r.Ref != nil && r.Flags&sam.Unmapped == 0
}
