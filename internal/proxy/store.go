package proxy

import "github.com/pik-piam/mrio-disagg/pkg/collections"

// Store holds the proxy and proxy-sum arrays for every refinement level,
// plus a bitset recording which levels actually carry loaded data.
type Store struct {
	proxies   [LevelCount]*Data
	proxySums [LevelCount]*Data
	loaded    *collections.Bitset
}

// NewStore returns an empty Store; proxy data is attached per level via
// EnsureProxy once a proxy file has been read for that level.
func NewStore() *Store {
	return &Store{loaded: collections.NewBitset(LevelCount)}
}

// HasLevel reports whether proxy data has been loaded for the given level.
func (s *Store) HasLevel(level Level) bool {
	return s.loaded.Test(int(level))
}

// Proxy returns the proxy array for a level, or nil if none has been loaded.
func (s *Store) Proxy(level Level) *Data { return s.proxies[level] }

// ProxySum returns the parent-sum array for a level, or nil if none exists.
func (s *Store) ProxySum(level Level) *Data { return s.proxySums[level] }

// EnsureProxy returns the proxy array for a level, allocating it with the
// given shape on first use and marking the level as loaded.
func (s *Store) EnsureProxy(level Level, dims ...int) *Data {
	if s.proxies[level] == nil {
		s.proxies[level] = NewData(dims...)
	}
	s.loaded.Set(int(level))
	return s.proxies[level]
}

// EnsureProxySum returns the parent-sum array for a level, allocating it
// with the given shape on first use.
func (s *Store) EnsureProxySum(level Level, dims ...int) *Data {
	if s.proxySums[level] == nil {
		s.proxySums[level] = NewData(dims...)
	}
	return s.proxySums[level]
}

// Applicable reports whether level d should run during refinement: either
// its own proxy data was loaded, or (for the three derived levels) all of
// its prerequisite levels were.
func (s *Store) Applicable(d Level) bool {
	if s.HasLevel(d) {
		return true
	}
	prereqs := d.Prerequisites()
	if prereqs == nil {
		return false
	}
	for _, p := range prereqs {
		if !s.HasLevel(p) {
			return false
		}
	}
	return true
}
