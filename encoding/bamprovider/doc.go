// Package bamprovider provides sequential, coordinate ordered access to
// the records of a BAM or SAM file.
//
// The Provider is an interface for reading such a file once, from the
// first record to the last.
package bamprovider
