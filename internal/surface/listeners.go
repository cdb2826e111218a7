package surface

import (
	"slices"
	"sync"
)

type layerKey struct {
	ev    EventType
	layer string
}

// listeners is the handler registry shared by the engines in this package.
type listeners struct {
	mu     sync.Mutex
	nextID int
	layer  map[int]layerHandler
	load   map[int]func(string)
}

type layerHandler struct {
	key layerKey
	fn  func(Event)
}

func newListeners() *listeners {
	return &listeners{
		layer: make(map[int]layerHandler),
		load:  make(map[int]func(string)),
	}
}

// add registers fn and reports whether it is the first handler for key.
func (l *listeners) add(key layerKey, fn func(Event)) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	first := l.countLocked(key) == 0
	id := l.nextID
	l.nextID++
	l.layer[id] = layerHandler{key: key, fn: fn}
	return id, first
}

// remove drops handler id and reports whether key has no handlers left.
func (l *listeners) remove(id int) (layerKey, bool, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.layer[id]
	if !ok {
		return layerKey{}, false, false
	}
	delete(l.layer, id)
	return h.key, true, l.countLocked(h.key) == 0
}

func (l *listeners) addLoad(fn func(string)) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.load[id] = fn
	return id
}

func (l *listeners) removeLoad(id int) {
	l.mu.Lock()
	delete(l.load, id)
	l.mu.Unlock()
}

// dropLayer forgets every layer-scoped handler.
func (l *listeners) dropLayer() {
	l.mu.Lock()
	l.layer = make(map[int]layerHandler)
	l.mu.Unlock()
}

func (l *listeners) count(key layerKey) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.countLocked(key)
}

func (l *listeners) countLocked(key layerKey) int {
	n := 0
	for _, h := range l.layer {
		if h.key == key {
			n++
		}
	}
	return n
}

// handlers returns a copy of the handlers for key in registration order.
func (l *listeners) handlers(key layerKey) []func(Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]int, 0)
	for id, h := range l.layer {
		if h.key == key {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	fns := make([]func(Event), len(ids))
	for i, id := range ids {
		fns[i] = l.layer[id].fn
	}
	return fns
}

func (l *listeners) loadHandlers() []func(string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]int, 0, len(l.load))
	for id := range l.load {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(string), len(ids))
	for i, id := range ids {
		fns[i] = l.load[id]
	}
	return fns
}
