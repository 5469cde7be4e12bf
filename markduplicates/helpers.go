package markduplicates

import (
	"github.com/grailbio/hts/sam"
)

var (
	rgTag = sam.Tag{'R', 'G'}

	// Tags written by other duplicate markers. They describe a
	// duplicate set that no longer exists once the flag is cleared.
	staleDupTags = []sam.Tag{
		{'D', 'I'},
		{'D', 'L'},
		{'D', 'S'},
		{'D', 'T'},
		{'D', 'U'},
	}
)

func getReadGroup(r *sam.Record) (string, bool) {
	aux := r.AuxFields.Get(rgTag)
	if aux == nil {
		return "", false
	}
	rg, ok := aux.Value().(string)
	return rg, ok
}

// GetLibrary returns the library for the given record's read group.
// If the library is not defined in readGroupLibrary, returns "Unknown
// Library".
func GetLibrary(readGroupLibrary map[string]string, record *sam.Record) string {
	const unknown = "Unknown Library"

	readGroup, found := getReadGroup(record)
	if !found {
		return unknown
	}

	library := readGroupLibrary[readGroup]
	if library == "" {
		return unknown
	}
	return library
}

// readGroupLibraries maps each read group in header to its library.
func readGroupLibraries(header *sam.Header) map[string]string {
	m := make(map[string]string)
	for _, readGroup := range header.RGs() {
		m[readGroup.Name()] = readGroup.Library()
	}
	return m
}

func clearDupFlagTags(r *sam.Record) {
	r.Flags &^= sam.Duplicate

	kept := r.AuxFields[:0]
	for _, aux := range r.AuxFields {
		stale := false
		for _, tag := range staleDupTags {
			if aux.Tag() == tag {
				stale = true
				break
			}
		}
		if !stale {
			kept = append(kept, aux)
		}
	}
	r.AuxFields = kept
}
