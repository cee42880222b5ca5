package pipeline

import "sync"

// Store is the single-owner registry of deployment records. All access goes
// through its mutex; records are handed out only as copies.
type Store struct {
	mu      sync.Mutex
	records []*Record
}

// NewStore returns an empty registry.
func NewStore() *Store {
	return &Store{}
}

// Insert tracks a new record.
func (s *Store) Insert(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, &rec)
}

// Get returns a copy of the record for buildID.
func (s *Store) Get(buildID int) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec := s.find(buildID); rec != nil {
		return rec.clone(), true
	}
	return Record{}, false
}

// ActiveByApplication reports whether a non-terminal record exists for the
// application. This backs the de-duplication check on pipeline start.
func (s *Store) ActiveByApplication(application string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ApplicationName == application && !rec.Terminal() {
			return true
		}
	}
	return false
}

// NonTerminal returns the build ids of all records still awaiting a
// terminal status.
func (s *Store) NonTerminal() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int
	for _, rec := range s.records {
		if !rec.Terminal() {
			ids = append(ids, rec.BuildID)
		}
	}
	return ids
}

// Snapshot returns copies of all records in insertion order.
func (s *Store) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.clone())
	}
	return out
}

// Apply merges a poll response into the matching record. completed is true
// only on the one transition from non-terminal to terminal, which lets the
// caller fire the completion notification exactly once.
func (s *Store) Apply(buildID int, d detail) (after Record, completed bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.find(buildID)
	if rec == nil {
		return Record{}, false, false
	}
	wasTerminal := rec.Terminal()
	rec.merge(d)
	return rec.clone(), !wasTerminal && rec.Terminal(), true
}

// SetLoading flips the transient abort-in-flight flag.
func (s *Store) SetLoading(buildID int, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec := s.find(buildID); rec != nil {
		rec.Loading = loading
	}
}

// Remove drops a record. Only terminal records may be removed.
func (s *Store) Remove(buildID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.records {
		if rec.BuildID != buildID {
			continue
		}
		if !rec.Terminal() {
			return ErrRecordNotTerminal
		}
		s.records = append(s.records[:i], s.records[i+1:]...)
		return nil
	}
	return ErrRecordNotFound
}

func (s *Store) find(buildID int) *Record {
	for _, rec := range s.records {
		if rec.BuildID == buildID {
			return rec
		}
	}
	return nil
}
