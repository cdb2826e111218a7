package feature

import (
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-campus/internal/logger"
)

func square(x, y float64) orb.Polygon {
	return orb.Polygon{orb.Ring{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}
}

func building(id any, name string) *geojson.Feature {
	f := geojson.NewFeature(square(0, 0))
	f.Properties["id"] = id
	f.Properties["name"] = name
	return f
}

func collection(fs ...*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range fs {
		fc.Append(f)
	}
	return fc
}

func TestID(t *testing.T) {
	id, ok := ID(building(float64(1), "Lab A"))
	assert.True(t, ok)
	assert.Equal(t, "1", id)

	f := geojson.NewFeature(square(0, 0))
	f.ID = "top"
	id, ok = ID(f)
	assert.True(t, ok)
	assert.Equal(t, "top", id)

	_, ok = ID(geojson.NewFeature(square(0, 0)))
	assert.False(t, ok)
}

func TestStoreLoadDropsMalformed(t *testing.T) {
	s := NewStore(logger.Discard())
	assert.False(t, s.Loaded())

	noGeom := geojson.NewFeature(nil)
	noGeom.Properties["id"] = "x"

	dropped := s.Load(map[Collection]*geojson.FeatureCollection{
		Buildings: collection(building("1", "Lab A"), noGeom, geojson.NewFeature(square(2, 2))),
		Parcels:   collection(building("1", "Parcel clash"), building("p1", "Parcel 1")),
	})

	assert.True(t, s.Loaded())
	require.Len(t, dropped, 3)
	for _, err := range dropped {
		assert.True(t, IsDataShape(err))
	}
	assert.Len(t, s.Get(Parcels).Features, 2)
	assert.Len(t, s.Get(Buildings).Features, 0, "building 1 clashes with parcel 1")
	assert.Len(t, s.Index(), 2)
}

func TestStoreDropsPointFeatures(t *testing.T) {
	s := NewStore(logger.Discard())
	pin := geojson.NewFeature(orb.Point{1, 1})
	pin.Properties["id"] = "pin"
	road := geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}})
	road.Properties["id"] = "r1"

	dropped := s.Load(map[Collection]*geojson.FeatureCollection{
		Roads: collection(pin, road),
	})
	require.Len(t, dropped, 1)
	assert.True(t, IsDataShape(dropped[0]))
	assert.Contains(t, dropped[0].Error(), "Point")
	_, ok := s.Lookup("pin")
	assert.False(t, ok)
	_, ok = s.Lookup("r1")
	assert.True(t, ok)
}

func TestStoreReplaceIsAtomic(t *testing.T) {
	s := NewStore(logger.Discard())
	s.Load(map[Collection]*geojson.FeatureCollection{
		Buildings: collection(building("1", "Lab A")),
	})
	before := s.Version()

	bad := geojson.NewFeature(square(0, 0))
	err := s.Replace(Buildings, collection(building("2", "Lab B"), bad))
	require.Error(t, err)
	assert.True(t, IsDataShape(err))
	assert.Equal(t, before, s.Version())
	assert.Len(t, s.Get(Buildings).Features, 1)

	require.NoError(t, s.Replace(Buildings, collection(building("2", "Lab B"), building("3", "Lab C"))))
	assert.Equal(t, before+1, s.Version())

	_, ok := s.Lookup("1")
	assert.False(t, ok)
	f, ok := s.Lookup("3")
	require.True(t, ok)
	assert.Equal(t, "Lab C", Name(f))
}

func TestStoreReplaceRejectsDuplicateAcrossIndex(t *testing.T) {
	s := NewStore(logger.Discard())
	s.Load(map[Collection]*geojson.FeatureCollection{
		Parcels: collection(building("p1", "Parcel")),
	})
	err := s.Replace(Buildings, collection(building("p1", "Clash")))
	assert.True(t, IsDataShape(err))
}

func TestStoreReplaceConcurrentReaders(t *testing.T) {
	s := NewStore(logger.Discard())
	s.Load(map[Collection]*geojson.FeatureCollection{
		Buildings: collection(building("a1", "A"), building("a2", "A")),
	})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				// every snapshot holds exactly two features of one generation
				fs := s.Get(Buildings).Features
				if assert.Len(t, fs, 2) {
					assert.Equal(t, Name(fs[0]), Name(fs[1]))
				}
			}
		}()
	}

	for i := range 200 {
		name := "A"
		if i%2 == 0 {
			name = "B"
		}
		require.NoError(t, s.Replace(Buildings, collection(building("a1", name), building("a2", name))))
	}
	close(stop)
	wg.Wait()
}

func TestStoreOnChange(t *testing.T) {
	s := NewStore(logger.Discard())
	var got []Collection
	off := s.OnChange(func(c Collection) { got = append(got, c) })

	require.NoError(t, s.Replace(Buildings, collection(building("1", "Lab"))))
	off()
	require.NoError(t, s.Replace(Buildings, collection()))

	assert.Equal(t, []Collection{Buildings}, got)
}

func TestStoreSearch(t *testing.T) {
	s := NewStore(logger.Discard())
	s.Load(map[Collection]*geojson.FeatureCollection{
		Buildings: collection(building("1", "Library"), building("2", "Gym")),
		Parcels:   collection(building("p1", "North Lawn")),
	})
	hits := s.Search("L")
	require.Len(t, hits, 2)
	assert.Equal(t, "Library", Name(hits[0]))
	assert.Equal(t, "North Lawn", Name(hits[1]))
}
