package engine

import "time"

// renameTombstone remembers a folder rename the engine performed
// itself, so the watcher's echo of that rename is not mistaken for
// user activity. Keyed by the old folder name.
type renameTombstone struct {
	newName    string
	identifier int64
	createdAt  time.Time
}

type tombstoneSet struct {
	entries map[string]renameTombstone
	ttl     time.Duration
	now     func() time.Time
}

func newTombstoneSet(ttl time.Duration) *tombstoneSet {
	return &tombstoneSet{
		entries: make(map[string]renameTombstone),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *tombstoneSet) put(oldName, newName string, identifier int64) {
	s.entries[oldName] = renameTombstone{
		newName:    newName,
		identifier: identifier,
		createdAt:  s.now(),
	}
}

func (s *tombstoneSet) fresh(ts renameTombstone) bool {
	return s.now().Sub(ts.createdAt) < s.ttl
}

// lookupOld finds a fresh tombstone recorded under the given old
// folder name. Expired entries are dropped on the way.
func (s *tombstoneSet) lookupOld(name string) (renameTombstone, bool) {
	ts, ok := s.entries[name]
	if !ok {
		return renameTombstone{}, false
	}
	if !s.fresh(ts) {
		delete(s.entries, name)
		return renameTombstone{}, false
	}
	return ts, true
}

// matchesNew reports whether a fresh tombstone explains the appearance
// of the given folder name for the given identifier, i.e. the create
// event is an echo of the engine's own rename.
func (s *tombstoneSet) matchesNew(name string, identifier int64) bool {
	for old, ts := range s.entries {
		if !s.fresh(ts) {
			delete(s.entries, old)
			continue
		}
		if ts.newName == name && ts.identifier == identifier {
			return true
		}
	}
	return false
}

func (s *tombstoneSet) clear() {
	s.entries = make(map[string]renameTombstone)
}
