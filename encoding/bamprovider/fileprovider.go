package bamprovider

import (
	"io"
	"sync"

	grailerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

// FileProvider implements Provider for BAM and SAM files. The path may
// be an S3 URL, in which case the data will be read from S3. Otherwise
// the data will be read from the local filesystem.
type FileProvider struct {
	// Path of the file. Must be nonempty.
	Path string
	// Type is the format of the file, BAM or SAM.
	Type FileType
	err  grailerrors.Once

	mu      sync.Mutex
	nActive int
	header  *sam.Header
}

// recordReader is implemented by both bam.Reader and sam.Reader.
type recordReader interface {
	Header() *sam.Header
	Read() (*sam.Record, error)
}

type fileIterator struct {
	provider *FileProvider
	in       file.File
	reader   recordReader
	closer   io.Closer

	err error
	rec *sam.Record
}

// open opens the file and creates a reader positioned at the first
// record.
func (b *FileProvider) open() (file.File, recordReader, io.Closer, error) {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, b.Path)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "bamprovider: open %s", b.Path)
	}
	switch b.Type {
	case BAM:
		reader, err := bam.NewReader(in.Reader(ctx), 1)
		if err != nil {
			in.Close(ctx) // nolint: errcheck
			return nil, nil, nil, errors.Wrapf(err, "bamprovider: read bam header %s", b.Path)
		}
		return in, reader, reader, nil
	case SAM:
		reader, err := sam.NewReader(in.Reader(ctx))
		if err != nil {
			in.Close(ctx) // nolint: errcheck
			return nil, nil, nil, errors.Wrapf(err, "bamprovider: read sam header %s", b.Path)
		}
		return in, reader, nil, nil
	}
	in.Close(ctx) // nolint: errcheck
	return nil, nil, nil, errors.Errorf("bamprovider: %s: unsupported file type %v", b.Path, b.Type)
}

// GetHeader implements the Provider interface.
func (b *FileProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}
	in, reader, closer, err := b.open()
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	b.header = reader.Header()
	if closer != nil {
		b.err.Set(closer.Close())
	}
	b.err.Set(in.Close(vcontext.Background()))
	return b.header, nil
}

// NewIterator implements the Provider interface.
func (b *FileProvider) NewIterator() Iterator {
	b.mu.Lock()
	b.nActive++
	b.mu.Unlock()

	iter := &fileIterator{provider: b}
	iter.in, iter.reader, iter.closer, iter.err = b.open()
	return iter
}

// Close implements the Provider interface.
func (b *FileProvider) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nActive > 0 {
		vlog.Fatalf("%d iterators still active for %+v", b.nActive, b.Path)
	}
	return b.err.Err()
}

// Scan implements the Iterator interface.
func (i *fileIterator) Scan() bool {
	if i.err != nil {
		return false
	}
	i.rec, i.err = i.reader.Read()
	if i.err != nil && i.err != io.EOF {
		vlog.VI(1).Infof("%s: read error: %v", i.provider.Path, i.err)
		i.err = errors.Wrapf(i.err, "bamprovider: read %s", i.provider.Path)
	}
	return i.err == nil
}

// Record implements the Iterator interface.
func (i *fileIterator) Record() *sam.Record {
	return i.rec
}

// Err implements the Iterator interface.
func (i *fileIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *fileIterator) Close() error {
	if i.closer != nil {
		if err := i.closer.Close(); err != nil && i.Err() == nil {
			i.err = err
		}
		i.closer = nil
	}
	if i.in != nil {
		if err := i.in.Close(vcontext.Background()); err != nil && i.Err() == nil {
			i.err = err
		}
		i.in = nil
	}
	err := i.Err()
	i.provider.err.Set(err)

	i.provider.mu.Lock()
	i.provider.nActive--
	if i.provider.nActive < 0 {
		vlog.Fatalf("Negative active count for %+v", i.provider.Path)
	}
	i.provider.mu.Unlock()
	return err
}
