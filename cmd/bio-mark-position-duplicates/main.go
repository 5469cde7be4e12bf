package main

/*
  bio-mark-position-duplicates marks or removes duplicate read pairs in
  a coordinate-sorted BAM or SAM file, comparing only the start of each
  read and the start of its mate. For more information, see
  github.com/grailbio/posdup/markduplicates/doc.go
*/

import (
	"flag"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/posdup/encoding/bamprovider"
	md "github.com/grailbio/posdup/markduplicates"
	"github.com/klauspost/compress/gzip"
)

var (
	bamFile          = flag.String("bam", "", "Input BAM or SAM filename. The file must be coordinate sorted")
	outputPath       = flag.String("output", "", "Output filename. By default, records are written to stdout")
	format           = flag.String("format", "bam", "Output format. Value is either 'bam' or 'sam'.")
	metricsFile      = flag.String("metrics", "", "Output metrics file")
	compressionLevel = flag.Int("compression-level", gzip.DefaultCompression, "gzip compression level of the output BAM, -1 for the default level")
	clearExisting    = flag.Bool("clear-existing", false, "clear existing duplicate flag before marking")
	removeDups       = flag.Bool("remove-dups", false, "remove duplicates instead of flagging them")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	// Validate parameters.
	if flag.NArg() > 0 {
		a := flag.Args()
		log.Fatalf("unparsed flags, please check flag syntax: '%s'", strings.Join(a[len(a)-flag.NArg():], " "))
	}

	opts := md.Opts{
		BamFile:          *bamFile,
		OutputPath:       *outputPath,
		Format:           *format,
		MetricsFile:      *metricsFile,
		CompressionLevel: *compressionLevel,
		ClearExisting:    *clearExisting,
		RemoveDups:       *removeDups,
	}

	provider := bamprovider.NewProvider(*bamFile)
	ctx := vcontext.Background()
	err := md.SetupAndMark(ctx, provider, &opts)
	if cerr := provider.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.Fatalf(err.Error())
	}
	log.Debug.Printf("exiting")
}
