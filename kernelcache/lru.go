package kernelcache

import (
	"container/list"
	"sync"
)

// lru is a mutex-guarded least-recently-used map of entries.
type lru struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front is most recent; values are *Entry
	items    map[string]*list.Element
}

func newLRU(capacity int) *lru {
	return &lru{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (l *lru) get(key string) (*Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.items[key]
	if !ok {
		return nil, false
	}
	l.order.MoveToFront(el)
	return el.Value.(*Entry), true
}

// put stores e and returns the number of entries evicted.
func (l *lru) put(key string, e *Entry) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.items[key]; ok {
		el.Value = e
		l.order.MoveToFront(el)
		return 0
	}
	l.items[key] = l.order.PushFront(e)
	evicted := 0
	for l.order.Len() > l.capacity {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		delete(l.items, oldest.Value.(*Entry).Key)
		evicted++
	}
	return evicted
}

func (l *lru) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

func (l *lru) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order.Init()
	clear(l.items)
}
