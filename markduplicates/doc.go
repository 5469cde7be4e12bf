/*
Package markduplicates marks or removes duplicate alignments in a
coordinate-sorted .bam or .sam file, using only read positions.

Duplicate Marking Concepts:

Each primary alignment A has a position key made of its
 1. reference
 2. alignment start
 3. mate alignment start

Nothing else is considered: not clipping, orientation, fragment
length, base qualities, read group or UMI.

Two pairs P1 and P2 are duplicates of each other if both reads of P1
have the same position keys as the reads of P2.  The pair that
appears first in the input is kept unmarked, and both reads of each
later pair get the duplicate flag 1024, or are removed from the
output.

Secondary and supplementary alignments, unmapped reads, and reads
whose mate is unmapped are passed through untouched.  They never
make another read a duplicate.

Implementation:

The input is read once, in order, by a single goroutine.  The Engine
keeps two pieces of state:

	positionMateStarts: the mate starts of the unmarked reads at the
	  current (reference, start).  It is cleared every time the start
	  changes.

	pendingDuplicates: the names of the reads marked as duplicates
	  whose mate has not been read yet, with the start at which the
	  mate is expected.  It is cleared every time the reference
	  changes, and entries whose expected start the input has moved
	  past are expired.

When a read R with start S and mate start M > S arrives, and M is
already in positionMateStarts, an earlier pair has the same key and
R is a duplicate.  R's name is added to pendingDuplicates, so that
when the input reaches M, R's mate is marked too:

	        S                       M
	|-------A1------|       |-------A2------|     first pair, kept
	|-------B1------|       |-------B2------|     B1 marked at S,
	                                               B2 marked at M

Only the leftmost read of a pair ever discovers the duplicate; the
rightmost read is marked through pendingDuplicates.  A pair whose
reads share the same start is never marked.

Memory use is bounded by the number of reads at the densest position
plus the number of marked pairs whose mates are still ahead, not by
the size of the input.

Input requirements:

The header must declare SO:coordinate; Mark fails before reading any
record otherwise.  The records themselves are not checked, and an
input whose records are out of order produces wrong flags.
*/
package markduplicates
