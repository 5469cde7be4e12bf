package markduplicates

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/posdup/encoding/bamprovider"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
)

// TestRecord is one input record of a TestCase, with the expected
// state of its duplicate flag on output.
type TestRecord struct {
	R       *sam.Record
	DupFlag bool
	// Removed is set when the record must be absent from the output.
	Removed bool
}

// TestCase is a coordinate-sorted input and the options to mark it
// with.
type TestCase struct {
	TRecords []TestRecord
	Opts     Opts
}

// NewRecord creates a record for tests. A nil mateRef creates an
// unpaired record.
func NewRecord(name string, ref *sam.Reference, pos int, flags sam.Flags, matePos int, mateRef *sam.Reference) *sam.Record {
	r := sam.GetFromFreePool()
	r.Name = name
	r.Ref = ref
	r.Pos = pos
	r.MatePos = matePos
	r.MateRef = mateRef
	r.Flags = flags
	r.Cigar = []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 10)}
	r.Seq = sam.NewSeq([]byte("ACGTACGTAC"))
	r.Qual = []byte{30, 30, 30, 30, 30, 30, 30, 30, 30, 30}
	return r
}

// NewPair creates the two reads of a pair on ref, starting at pos1 and
// pos2.
func NewPair(name string, ref *sam.Reference, pos1, pos2 int) (*sam.Record, *sam.Record) {
	return NewRecord(name, ref, pos1, sam.Paired|sam.Read1, pos2, ref),
		NewRecord(name, ref, pos2, sam.Paired|sam.Read2|sam.Reverse, pos1, ref)
}

// NewAux creates an aux field, and panics on error.
func NewAux(name string, val interface{}) sam.Aux {
	aux, err := sam.NewAux(sam.NewTag(name), val)
	if err != nil {
		panic(fmt.Sprintf("error creating %s %v tag: %v", name, val, err))
	}
	return aux
}

// RunTestCases marks each test case in both output formats, and checks
// the duplicate flag and the presence of every output record.
func RunTestCases(t *testing.T, header *sam.Header, cases []TestCase) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	for testIdx, test := range cases {
		for _, format := range []string{"bam", "sam"} {
			t.Logf("---- starting TestCase[%d] %s ----", testIdx, format)
			testrecords := make([]*sam.Record, 0, len(test.TRecords))
			expected := make([]TestRecord, 0, len(test.TRecords))
			for _, tr := range test.TRecords {
				testrecords = append(testrecords, tr.R)
				if !tr.Removed {
					expected = append(expected, tr)
				}
			}
			provider := bamprovider.NewFakeProvider(header, testrecords)

			opts := test.Opts
			opts.OutputPath = filepath.Join(tempDir, fmt.Sprintf("%d.%s", testIdx, format))
			opts.Format = format
			markDuplicates := &MarkDuplicates{
				Provider: provider,
				Opts:     &opts,
			}
			_, err := markDuplicates.Mark(context.Background())
			assert.NoError(t, err)

			actualRecords := ReadRecords(t, opts.OutputPath)
			assert.Equal(t, len(expected), len(actualRecords))
			for i, r := range actualRecords {
				if i >= len(expected) {
					break
				}
				t.Logf("output[%v]: %v", i, r)
				assert.Equal(t, expected[i].R.Name, r.Name, "record order is wrong")
				assert.Equal(t, expected[i].R.Pos, r.Pos, "record order is wrong")
				assert.Equal(t, expected[i].DupFlag, r.Flags&sam.Duplicate != 0,
					"duplicate flag is wrong for %s at %d", r.Name, r.Pos)
			}
		}
	}
}

// ReadRecords reads the records from path and returns them as a slice, in order.
func ReadRecords(t *testing.T, path string) []*sam.Record {
	records := make([]*sam.Record, 0)
	p := bamprovider.NewProvider(path)
	iter := p.NewIterator()
	for iter.Scan() {
		records = append(records, iter.Record())
	}
	assert.NoError(t, iter.Close())
	assert.NoError(t, p.Close())
	return records
}
