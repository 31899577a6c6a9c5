package backend

import (
	"errors"
	"fmt"
)

// ErrDuplicateContainer is returned when two containers share a key.
var ErrDuplicateContainer = errors.New("duplicate container key")

// ContainerEntry pairs a container key with its descriptor.
type ContainerEntry struct {
	Key        string
	Descriptor ContainerDescriptor
}

// ContainerSet is an immutable ordered association of container keys to
// descriptors. It is built once and then only read.
type ContainerSet struct {
	entries []ContainerEntry
	index   map[string]int
}

// NewContainerSet builds a ContainerSet preserving the order of entries.
func NewContainerSet(entries ...ContainerEntry) (ContainerSet, error) {
	set := ContainerSet{
		entries: make([]ContainerEntry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if _, ok := set.index[e.Key]; ok {
			return ContainerSet{}, fmt.Errorf("%w: %s", ErrDuplicateContainer, e.Key)
		}
		set.index[e.Key] = len(set.entries)
		set.entries = append(set.entries, e)
	}
	return set, nil
}

// Len returns the number of containers.
func (s ContainerSet) Len() int {
	return len(s.entries)
}

// Keys returns the container keys in insertion order.
func (s ContainerSet) Keys() []string {
	keys := make([]string, len(s.entries))
	for i, e := range s.entries {
		keys[i] = e.Key
	}
	return keys
}

// Get returns the descriptor stored under key.
func (s ContainerSet) Get(key string) (ContainerDescriptor, bool) {
	i, ok := s.index[key]
	if !ok {
		return ContainerDescriptor{}, false
	}
	return s.entries[i].Descriptor, true
}

// Entries returns a copy of the entries in insertion order.
func (s ContainerSet) Entries() []ContainerEntry {
	return append([]ContainerEntry(nil), s.entries...)
}
