package markduplicates

import (
	"fmt"

	"github.com/grailbio/posdup/encoding/bamprovider"
	"github.com/klauspost/compress/gzip"
)

func validate(opts *Opts) error {
	if opts.BamFile == "" {
		return fmt.Errorf("you must specify a bam file with --bam")
	}
	if opts.Format == "" {
		opts.Format = "bam"
	}
	if bamprovider.ParseFileType(opts.Format) == bamprovider.Unknown {
		return fmt.Errorf("unknown output format %s", opts.Format)
	}
	if opts.CompressionLevel < gzip.DefaultCompression || opts.CompressionLevel > gzip.BestCompression {
		return fmt.Errorf("compression-level must be between %d and %d, got %d",
			gzip.DefaultCompression, gzip.BestCompression, opts.CompressionLevel)
	}
	if opts.OutputPath != "" && opts.OutputPath == opts.BamFile {
		return fmt.Errorf("output %s would overwrite the input", opts.OutputPath)
	}
	return nil
}
