package markduplicates

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/sam"
)

// Metrics contains per-library duplicate marking metrics. The columns
// follow picard's MarkDuplicates report, minus the optical duplicates
// which position-only marking cannot tell apart.
type Metrics struct {
	// UnpairedReads is the number of mapped primary reads examined
	// which did not have a mapped mate.
	UnpairedReads int

	// ReadPairsExamined is the number of mapped primary reads examined
	// whose mate is also mapped. Each pair is counted twice.
	ReadPairsExamined int

	// SecondarySupplementary is the number of reads that were either
	// secondary or supplementary.
	SecondarySupplementary int

	// UnmappedReads is the total number of unmapped primary reads.
	UnmappedReads int

	// UnpairedDups is the number of reads without a mapped mate that
	// carry the duplicate flag.
	UnpairedDups int

	// ReadPairDups is the number of paired reads that carry the
	// duplicate flag. Each pair is counted twice.
	ReadPairDups int
}

// PercentDuplication returns the percentage of examined reads that are
// duplicates.
func (m *Metrics) PercentDuplication() float64 {
	examined := m.UnpairedReads + m.ReadPairsExamined
	if examined == 0 {
		return 0
	}
	return 100 * float64(m.UnpairedDups+m.ReadPairDups) / float64(examined)
}

// String returns a string representation of the metrics contained in
// m. The string can be used as metrics file output.
func (m *Metrics) String() string {
	librarySizeStr := "0"
	pairs := uint64(m.ReadPairsExamined / 2)
	unique := pairs - uint64(m.ReadPairDups/2)
	if librarySize, err := estimateLibrarySize(pairs, unique); err == nil {
		librarySizeStr = strconv.FormatUint(librarySize, 10)
	} else {
		log.Debug.Printf("estimateLibrarySize(%v, %v): %v", pairs, unique, err)
	}
	return fmt.Sprintf("%d\t%d\t%d\t%d\t%d\t%d\t%0.6f\t%s", m.UnpairedReads, m.ReadPairsExamined/2,
		m.SecondarySupplementary, m.UnmappedReads, m.UnpairedDups, m.ReadPairDups/2,
		m.PercentDuplication(), librarySizeStr)
}

// Add adds the metrics in other to m.
func (m *Metrics) Add(other *Metrics) {
	m.UnpairedReads += other.UnpairedReads
	m.ReadPairsExamined += other.ReadPairsExamined
	m.SecondarySupplementary += other.SecondarySupplementary
	m.UnmappedReads += other.UnmappedReads
	m.UnpairedDups += other.UnpairedDups
	m.ReadPairDups += other.ReadPairDups
}

// MetricsCollection contains metrics computed by Mark.
type MetricsCollection struct {
	// RecordsIn is the number of records read from the input.
	RecordsIn int
	// RecordsOut is the number of records written to the output.
	RecordsOut int
	// RecordsRemoved is the number of duplicates dropped from the
	// output. It is zero unless duplicates are removed.
	RecordsRemoved int

	// Engine describes the state the duplicate engine held.
	Engine EngineStats

	// OutputDigest is an order sensitive hash of the written records.
	OutputDigest uint64

	// LibraryMetrics contains per-library metrics.
	LibraryMetrics map[string]*Metrics
}

func newMetricsCollection() *MetricsCollection {
	return &MetricsCollection{
		LibraryMetrics: make(map[string]*Metrics),
	}
}

// Get returns Metrics for the given library. If there is no Metrics
// for library yet, create one and return it.
func (mc *MetricsCollection) Get(library string) *Metrics {
	m, found := mc.LibraryMetrics[library]
	if found {
		return m
	}
	m = &Metrics{}
	mc.LibraryMetrics[library] = m
	return m
}

// Total returns the sum of the metrics of all libraries.
func (mc *MetricsCollection) Total() Metrics {
	var total Metrics
	for _, m := range mc.LibraryMetrics {
		total.Add(m)
	}
	return total
}

// update counts record, after it has been classified, in the metrics
// of its library.
func (mc *MetricsCollection) update(readGroupLibrary map[string]string, record *sam.Record) {
	metrics := mc.Get(GetLibrary(readGroupLibrary, record))

	switch {
	case !isPrimary(record):
		metrics.SecondarySupplementary++
	case !isPlaced(record):
		metrics.UnmappedReads++
	case mateStart(record) == noMateStart:
		metrics.UnpairedReads++
		if record.Flags&sam.Duplicate != 0 {
			metrics.UnpairedDups++
		}
	default:
		metrics.ReadPairsExamined++
		if record.Flags&sam.Duplicate != 0 {
			metrics.ReadPairDups++
		}
	}
}

var metricsColumns = []string{
	"LIBRARY",
	"UNPAIRED_READS_EXAMINED",
	"READ_PAIRS_EXAMINED",
	"SECONDARY_OR_SUPPLEMENTARY_RDS",
	"UNMAPPED_READS",
	"UNPAIRED_READ_DUPLICATES",
	"READ_PAIR_DUPLICATES",
	"PERCENT_DUPLICATION",
	"ESTIMATED_LIBRARY_SIZE",
}

func writeMetrics(ctx context.Context, path string, mc *MetricsCollection) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "couldn't create metrics file:", path)
	}
	defer file.CloseAndReport(ctx, out, &err)

	w := tsv.NewWriter(out.Writer(ctx))
	comments := []string{
		"# bio-mark-position-duplicates",
		fmt.Sprintf("# records in: %d, out: %d, removed: %d", mc.RecordsIn, mc.RecordsOut, mc.RecordsRemoved),
		fmt.Sprintf("# peak mate starts per position: %d", mc.Engine.PeakPositionMateStarts),
		fmt.Sprintf("# peak pending duplicates: %d", mc.Engine.PeakPendingDuplicates),
		fmt.Sprintf("# orphaned duplicates: %d", mc.Engine.OrphanedDuplicates),
		fmt.Sprintf("# output digest: %016x", mc.OutputDigest),
	}
	for _, c := range comments {
		w.WriteString(c)
		if err = w.EndLine(); err != nil {
			return errors.E(err, "error writing to metrics file:", path)
		}
	}
	for _, c := range metricsColumns {
		w.WriteString(c)
	}
	if err = w.EndLine(); err != nil {
		return errors.E(err, "error writing to metrics file:", path)
	}

	libraries := make([]string, 0, len(mc.LibraryMetrics))
	for library := range mc.LibraryMetrics {
		libraries = append(libraries, library)
	}
	sort.Strings(libraries)
	for _, library := range libraries {
		// String() is already tab separated.
		w.WriteString(library + "\t" + mc.LibraryMetrics[library].String())
		if err = w.EndLine(); err != nil {
			return errors.E(err, "error writing to metrics file:", path)
		}
	}
	if err = w.Flush(); err != nil {
		return errors.E(err, "error writing to metrics file:", path)
	}
	return nil
}
