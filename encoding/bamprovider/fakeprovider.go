package bamprovider

import (
	"github.com/grailbio/hts/sam"
)

// fakeProvider is only for unittests. It yields the given records.
type fakeProvider struct {
	header *sam.Header
	recs   []*sam.Record
	err    error
}

type fakeIterator struct {
	recs []*sam.Record
	rec  *sam.Record
	err  error
}

// NewFakeProvider creates a provider that returns "header" in response to a
// GetHeader() call, and recs by NewIterator calls.
func NewFakeProvider(header *sam.Header, recs []*sam.Record) Provider {
	return &fakeProvider{header: header, recs: recs}
}

// NewFakeErrorProvider creates a provider like NewFakeProvider, whose
// iterators fail with err after yielding recs.
func NewFakeErrorProvider(header *sam.Header, recs []*sam.Record, err error) Provider {
	return &fakeProvider{header: header, recs: recs, err: err}
}

// GetHeader implements the Provider interface. It returns the header passed to
// the constructor.
func (b *fakeProvider) GetHeader() (*sam.Header, error) {
	return b.header, nil
}

// Close implements the Provider interface.
func (b *fakeProvider) Close() error {
	return nil
}

// NewIterator implements the Provider interface.
func (b *fakeProvider) NewIterator() Iterator {
	return &fakeIterator{recs: b.recs, err: b.err}
}

// Err implements the Iterator interface.
func (i *fakeIterator) Err() error {
	if len(i.recs) > 0 {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *fakeIterator) Close() error {
	return i.Err()
}

// Scan implements the Iterator interface.
func (i *fakeIterator) Scan() bool {
	if len(i.recs) == 0 {
		return false
	}
	i.rec = i.recs[0]
	i.recs = i.recs[1:]
	return true
}

// Record implements the Iterator interface.
func (i *fakeIterator) Record() *sam.Record {
	// Return a copy so that the code under test cannot alter the
	// original test input data.
	copy := sam.GetFromFreePool()
	*copy = *i.rec
	copy.AuxFields = append(sam.AuxFields(nil), i.rec.AuxFields...)
	return copy
}
