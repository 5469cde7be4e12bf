package markduplicates

import (
	"context"
	"fmt"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/posdup/encoding/bamprovider"
)

// Opts for mark-duplicates.
type Opts struct {
	// Commandline options.
	BamFile          string
	OutputPath       string
	Format           string
	MetricsFile      string
	CompressionLevel int
	RemoveDups       bool
	ClearExisting    bool
}

// MarkDuplicates implements position-only duplicate marking over one
// coordinate-sorted input.
type MarkDuplicates struct {
	Provider         bamprovider.Provider
	Opts             *Opts
	readGroupLibrary map[string]string
}

// checkSortOrder fails unless header declares coordinate order.
func checkSortOrder(header *sam.Header) error {
	if header.SortOrder != sam.Coordinate {
		return errors.E(errors.Precondition,
			fmt.Sprintf("markduplicates: input must be coordinate sorted, header declares sort order %q", header.SortOrder))
	}
	return nil
}

// Mark marks or removes the duplicates, writes the kept records to the
// output, and returns metrics, and an error if encountered.
func (m *MarkDuplicates) Mark(ctx context.Context) (*MetricsCollection, error) {
	header, err := m.Provider.GetHeader()
	if err != nil {
		return nil, err
	}
	if err := checkSortOrder(header); err != nil {
		return nil, err
	}
	m.readGroupLibrary = readGroupLibraries(header)

	writer, err := newRecordWriter(ctx, m.Opts, header)
	if err != nil {
		return nil, err
	}

	t0 := time.Now()
	metrics := newMetricsCollection()
	engine := NewEngine(m.Opts.RemoveDups, m.Opts.ClearExisting)
	e := errors.Once{}
	iter := m.Provider.NewIterator()
	for iter.Scan() {
		record := iter.Record()
		metrics.RecordsIn++
		keep, err := engine.Process(record)
		if err != nil {
			e.Set(err)
			break
		}
		metrics.update(m.readGroupLibrary, record)
		if !keep {
			log.Debug.Printf("removing duplicate %s %v", record.Name, keyOf(record))
			metrics.RecordsRemoved++
			sam.PutInFreePool(record)
			continue
		}
		if err := writer.Write(record); err != nil {
			e.Set(errors.E(err, "error writing", record.Name))
			break
		}
		metrics.RecordsOut++
		sam.PutInFreePool(record)
	}
	e.Set(iter.Close())
	engine.Finish()
	e.Set(writer.Close())
	if err := e.Err(); err != nil {
		return nil, err
	}

	metrics.Engine = engine.Stats()
	metrics.OutputDigest = writer.Digest()
	total := metrics.Total()
	log.Debug.Printf("marked %d records in %v, engine stats %+v", metrics.RecordsIn, time.Since(t0), metrics.Engine)
	log.Printf("examined %d pairs, %d pair duplicates, %d unpaired duplicates, %d records removed",
		total.ReadPairsExamined/2, total.ReadPairDups/2, total.UnpairedDups, metrics.RecordsRemoved)
	return metrics, nil
}

// SetupAndMark validates opts, then marks the duplicates of the
// records yielded by provider, and writes the metrics file if one was
// requested.
func SetupAndMark(ctx context.Context, provider bamprovider.Provider, opts *Opts) error {
	if err := validate(opts); err != nil {
		return err
	}

	markDuplicates := &MarkDuplicates{
		Provider: provider,
		Opts:     opts,
	}
	globalMetrics, err := markDuplicates.Mark(ctx)
	if err != nil {
		log.Debug.Printf("Error marking duplicates: %v", err)
		return err
	}

	if opts.MetricsFile != "" {
		if err := writeMetrics(ctx, opts.MetricsFile, globalMetrics); err != nil {
			return err
		}
	}
	return nil
}
