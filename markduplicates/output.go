package markduplicates

import (
	"bufio"
	"context"
	"encoding/binary"
	"hash"
	"io"
	"os"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/posdup/encoding/bamprovider"
)

// recordWriter writes the kept records, in order, to the output path
// or stdout, and hashes what it writes.
type recordWriter struct {
	ctx    context.Context
	out    file.File // nil for stdout
	buf    *bufio.Writer
	bam    *bam.Writer
	sam    *sam.Writer
	digest hash.Hash64
}

func newRecordWriter(ctx context.Context, opts *Opts, header *sam.Header) (*recordWriter, error) {
	w := &recordWriter{ctx: ctx, digest: seahash.New()}
	var dst io.Writer = os.Stdout
	if opts.OutputPath != "" {
		out, err := file.Create(ctx, opts.OutputPath)
		if err != nil {
			return nil, errors.E(err, "couldn't create output file", opts.OutputPath)
		}
		w.out = out
		dst = out.Writer(ctx)
	}

	var err error
	switch bamprovider.ParseFileType(opts.Format) {
	case bamprovider.BAM:
		w.bam, err = bam.NewWriterLevel(dst, header, opts.CompressionLevel, 1)
	case bamprovider.SAM:
		w.buf = bufio.NewWriter(dst)
		w.sam, err = sam.NewWriter(w.buf, header, sam.FlagDecimal)
	default:
		err = errors.E(errors.Invalid, "unknown output format", opts.Format)
	}
	if err != nil {
		if w.out != nil {
			w.out.Close(ctx) // nolint: errcheck
		}
		return nil, errors.E(err, "couldn't create writer for", opts.OutputPath)
	}
	return w, nil
}

// Write writes r to the output.
func (w *recordWriter) Write(r *sam.Record) error {
	w.hash(r)
	if w.bam != nil {
		return w.bam.Write(r)
	}
	return w.sam.Write(r)
}

func (w *recordWriter) hash(r *sam.Record) {
	var buf [20]byte
	binary.LittleEndian.PutUint32(buf[0:], uint32(r.Ref.ID()))
	binary.LittleEndian.PutUint32(buf[4:], uint32(r.Pos))
	binary.LittleEndian.PutUint32(buf[8:], uint32(r.MateRef.ID()))
	binary.LittleEndian.PutUint32(buf[12:], uint32(r.MatePos))
	binary.LittleEndian.PutUint32(buf[16:], uint32(r.Flags))
	w.digest.Write(buf[:])         // nolint: errcheck
	w.digest.Write([]byte(r.Name)) // nolint: errcheck
}

// Digest returns the hash of the records written so far.
func (w *recordWriter) Digest() uint64 {
	return w.digest.Sum64()
}

// Close flushes the output and closes the output file.
func (w *recordWriter) Close() error {
	e := errors.Once{}
	if w.bam != nil {
		e.Set(w.bam.Close())
	}
	if w.buf != nil {
		e.Set(w.buf.Flush())
	}
	if w.out != nil {
		e.Set(w.out.Close(w.ctx))
	}
	return e.Err()
}
