package engine

import (
	"slices"
	"sync"
)

// lockSet hands out per-canvas and per-cell mutexes. Entries are created on
// first use and kept for the life of the engine.
type lockSet struct {
	mu       sync.Mutex
	canvases map[string]*sync.RWMutex
	cells    map[string]*sync.Mutex
}

func newLockSet() *lockSet {
	return &lockSet{
		canvases: make(map[string]*sync.RWMutex),
		cells:    make(map[string]*sync.Mutex),
	}
}

func (l *lockSet) canvas(id string) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.canvases[id]
	if !ok {
		m = &sync.RWMutex{}
		l.canvases[id] = m
	}
	return m
}

func (l *lockSet) cell(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.cells[id]
	if !ok {
		m = &sync.Mutex{}
		l.cells[id] = m
	}
	return m
}

// lockCanvas takes the canvas write lock: allocation, grid changes and
// deletion.
func (l *lockSet) lockCanvas(id string) func() {
	m := l.canvas(id)
	m.Lock()
	return m.Unlock
}

// rlockCanvas takes the canvas read lock: edits, which serialize among
// themselves on cell locks.
func (l *lockSet) rlockCanvas(id string) func() {
	m := l.canvas(id)
	m.RLock()
	return m.RUnlock
}

// lockCells locks every listed cell in ascending ID order and returns a
// function releasing them in reverse.
func (l *lockSet) lockCells(ids ...string) func() {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for _, id := range sorted {
		if id == "" {
			continue
		}
		m := l.cell(id)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
