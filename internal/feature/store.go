package feature

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb/geojson"
)

// snapshot is an immutable view of every collection. Writers build a new
// snapshot and swap it in; readers never observe a half-replaced collection.
type snapshot struct {
	collections map[Collection]*geojson.FeatureCollection
	index       []*geojson.Feature
	byID        map[string]*geojson.Feature
	loaded      bool
	version     uint64
}

// Store is the canonical feature model for one map session.
type Store struct {
	snap atomic.Pointer[snapshot]
	wmu  sync.Mutex

	lmu       sync.RWMutex
	listeners map[int]func(Collection)
	nextID    int

	log *slog.Logger
}

// NewStore creates an empty, not-yet-loaded store.
func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		listeners: make(map[int]func(Collection)),
		log:       log,
	}
	s.snap.Store(&snapshot{
		collections: emptyCollections(),
		byID:        map[string]*geojson.Feature{},
	})
	return s
}

func emptyCollections() map[Collection]*geojson.FeatureCollection {
	m := make(map[Collection]*geojson.FeatureCollection, len(Collections))
	for _, c := range Collections {
		m[c] = geojson.NewFeatureCollection()
	}
	return m
}

// Load installs the initial collections. Malformed features are logged and
// dropped; the rest are kept. The returned errors are the dropped features.
func (s *Store) Load(data map[Collection]*geojson.FeatureCollection) []error {
	s.wmu.Lock()
	cur := s.snap.Load()
	cols := emptyCollections()
	seen := map[string]Collection{}
	var dropped []error

	for _, c := range Collections {
		fc := data[c]
		if fc == nil {
			continue
		}
		own := map[string]bool{}
		for i, f := range fc.Features {
			id, err := validate(c, i, f)
			if err == nil && own[id] {
				err = &DataShapeError{Collection: c, Index: i, ID: id, Reason: "duplicate id"}
			}
			if err == nil && c.Indexed() {
				if other, dup := seen[id]; dup {
					err = &DataShapeError{Collection: c, Index: i, ID: id,
						Reason: "id already used in " + string(other)}
				}
			}
			if err != nil {
				s.log.Warn("dropping malformed feature", "error", err)
				dropped = append(dropped, err)
				continue
			}
			own[id] = true
			if c.Indexed() {
				seen[id] = c
			}
			cols[c].Append(f)
		}
	}

	next := build(cols, cur.version+1)
	next.loaded = true
	s.snap.Store(next)
	s.wmu.Unlock()

	for _, c := range Collections {
		s.notify(c)
	}
	return dropped
}

// Replace swaps one collection wholesale. The whole collection is validated
// first; on any *DataShapeError nothing changes.
func (s *Store) Replace(c Collection, fc *geojson.FeatureCollection) error {
	if _, err := ParseCollection(string(c)); err != nil {
		return err
	}
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}

	s.wmu.Lock()
	cur := s.snap.Load()

	// ids used by the other indexed collection
	taken := map[string]bool{}
	if c.Indexed() {
		for _, other := range Collections {
			if other == c || !other.Indexed() {
				continue
			}
			for _, f := range cur.collections[other].Features {
				id, _ := ID(f)
				taken[id] = true
			}
		}
	}

	own := map[string]bool{}
	copied := geojson.NewFeatureCollection()
	for i, f := range fc.Features {
		id, err := validate(c, i, f)
		if err != nil {
			s.wmu.Unlock()
			return err
		}
		if own[id] || taken[id] {
			s.wmu.Unlock()
			return &DataShapeError{Collection: c, Index: i, ID: id, Reason: "duplicate id"}
		}
		own[id] = true
		copied.Append(f)
	}

	cols := make(map[Collection]*geojson.FeatureCollection, len(cur.collections))
	for k, v := range cur.collections {
		cols[k] = v
	}
	cols[c] = copied

	next := build(cols, cur.version+1)
	next.loaded = cur.loaded
	s.snap.Store(next)
	s.wmu.Unlock()

	s.notify(c)
	return nil
}

func build(cols map[Collection]*geojson.FeatureCollection, version uint64) *snapshot {
	next := &snapshot{
		collections: cols,
		byID:        map[string]*geojson.Feature{},
		version:     version,
	}
	for _, c := range []Collection{Buildings, Parcels} {
		for _, f := range cols[c].Features {
			id, _ := ID(f)
			next.index = append(next.index, f)
			next.byID[id] = f
		}
	}
	return next
}

// Loaded reports whether the initial data has arrived.
func (s *Store) Loaded() bool {
	return s.snap.Load().loaded
}

// Version increases on every successful Load or Replace.
func (s *Store) Version() uint64 {
	return s.snap.Load().version
}

// Get returns the current collection c. Treat the result as read-only.
func (s *Store) Get(c Collection) *geojson.FeatureCollection {
	if fc, ok := s.snap.Load().collections[c]; ok {
		return fc
	}
	return geojson.NewFeatureCollection()
}

// Index returns the merged search index: buildings followed by parcels.
func (s *Store) Index() []*geojson.Feature {
	idx := s.snap.Load().index
	out := make([]*geojson.Feature, len(idx))
	copy(out, idx)
	return out
}

// Lookup resolves an id against the merged search index.
func (s *Store) Lookup(id string) (*geojson.Feature, bool) {
	f, ok := s.snap.Load().byID[id]
	return f, ok
}

// Search returns index features whose name contains term, ignoring case.
func (s *Store) Search(term string) []*geojson.Feature {
	fc := geojson.NewFeatureCollection()
	fc.Features = s.snap.Load().index
	return Filter(fc, term).Features
}

// OnChange registers fn to run after a collection changes. The returned func
// removes it.
func (s *Store) OnChange(fn func(Collection)) func() {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

func (s *Store) notify(c Collection) {
	s.lmu.RLock()
	fns := make([]func(Collection), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

// IsDataShape reports whether err is a *DataShapeError.
func IsDataShape(err error) bool {
	var dse *DataShapeError
	return errors.As(err, &dse)
}
