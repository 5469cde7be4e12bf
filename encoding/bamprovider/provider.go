package bamprovider

import (
	"strings"

	"github.com/grailbio/hts/sam"
)

// Provider gives access to the header and the records of one alignment
// file. Thread compatible.
type Provider interface {
	// GetHeader returns the header of the file. The callee must not
	// modify the returned header object.
	//
	// REQUIRES: Close has not been called.
	GetHeader() (*sam.Header, error)

	// NewIterator returns an iterator over all the records of the
	// file, in file order.
	//
	// REQUIRES: Close has not been called.
	NewIterator() Iterator

	// Close must be called exactly once. It returns any error encountered
	// by the provider, or any iterator created by the provider.
	//
	// REQUIRES: All the iterators created by NewIterator have been closed.
	Close() error
}

// Iterator iterates over sam.Records in file order. Thread compatible.
type Iterator interface {
	// Scan returns where there are any records remaining in the iterator,
	// and if so, advances the iterator to the next record. If the iterator
	// reaches the end of the file, Scan() returns false.  If an error
	// occurs, Scan() returns false and the error can be retrieved by
	// calling Err().
	//
	// REQUIRES: Close has not been called.
	Scan() bool

	// Record returns the current record in the iterator. This must be
	// called only after a call to Scan() returns true.
	//
	// REQUIRES: Close has not been called.
	Record() *sam.Record

	// Err returns the error encoutered during iteration, or nil if no error
	// occurred.  An io.EOF error will be translated to nil.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

// FileType represents the type of an alignment file.
type FileType int

const (
	// Unknown is a sentinel.
	Unknown FileType = iota
	// BAM file
	BAM
	// SAM file
	SAM
)

// String returns the name accepted by ParseFileType.
func (t FileType) String() string {
	switch t {
	case BAM:
		return "bam"
	case SAM:
		return "sam"
	default:
		return "unknown"
	}
}

// ParseFileType parses the file type string. "bam" returns bamprovider.BAM, for
// example. On error, it returns Unknown.
func ParseFileType(name string) FileType {
	switch name {
	case "bam":
		return BAM
	case "sam":
		return SAM
	default:
		return Unknown
	}
}

// GuessFileType returns the file type from the pathname. Returns
// Unknown if the extension is not recognized.
func GuessFileType(path string) FileType {
	switch {
	case strings.HasSuffix(path, ".bam"):
		return BAM
	case strings.HasSuffix(path, ".sam"):
		return SAM
	}
	return Unknown
}

// NewProvider creates a Provider object that can handle the BAM or SAM
// file at "path". The file type is autodetected from the path, and
// files with an unknown extension are read as BAM.
func NewProvider(path string) Provider {
	typ := GuessFileType(path)
	if typ == Unknown {
		typ = BAM
	}
	return &FileProvider{Path: path, Type: typ}
}
