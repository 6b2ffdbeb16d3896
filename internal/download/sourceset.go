package download

import (
	"sync"

	"github.com/cyfs-core/bdt-ndn/internal/codec"
	"github.com/cyfs-core/bdt-ndn/internal/ids"
)

// Source is one candidate device known to hold a chunk, along with the
// codec it advertises for encoding it (spec.md §4.5 step 5).
type Source struct {
	Device     ids.DeviceId
	EncodeDesc codec.Desc
}

// SourceSet is the mutable set of candidate sources a downloader picks
// from. Ordering is arbitrary but stable within a context (spec.md §4.5
// step 3): callers add/remove sources as discovery and churn happen; Pick
// always returns sources in the order they were added.
type SourceSet struct {
	mu      sync.Mutex
	sources []Source
}

// NewSourceSet builds an empty source set.
func NewSourceSet() *SourceSet {
	return &SourceSet{}
}

// Add registers source, replacing any existing entry for the same device.
func (s *SourceSet) Add(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.sources {
		if existing.Device.Equals(src.Device) {
			s.sources[i] = src
			return
		}
	}
	s.sources = append(s.sources, src)
}

// Remove drops the source for device, if present.
func (s *SourceSet) Remove(device ids.DeviceId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.sources {
		if existing.Device.Equals(device) {
			s.sources = append(s.sources[:i], s.sources[i+1:]...)
			return
		}
	}
}

// Contains reports whether device is still a member of the set.
func (s *SourceSet) Contains(device ids.DeviceId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sources {
		if existing.Device.Equals(device) {
			return true
		}
	}
	return false
}

// Pick returns the first candidate source not already excluded, and true,
// or the zero Source and false if the set is empty.
func (s *SourceSet) Pick(exclude ids.DeviceId) (Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.sources {
		if src.Device.Equals(exclude) {
			continue
		}
		return src, true
	}
	return Source{}, false
}
