// Package keylock provides one mutex per key, so work on different index
// locations never contends on a shared lock.
package keylock

import "sync"

// Map hands out a mutex per key. Entries live as long as the Map; the key
// space is the set of index locations a process touches.
type Map struct {
	locks sync.Map // string -> *sync.Mutex
}

// Lock acquires the mutex for key and returns the function that releases it.
func (m *Map) Lock(key string) (unlock func()) {
	mu := m.get(key)
	mu.Lock()
	return mu.Unlock
}

func (m *Map) get(key string) *sync.Mutex {
	if v, ok := m.locks.Load(key); ok {
		return v.(*sync.Mutex)
	}
	v, _ := m.locks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}
