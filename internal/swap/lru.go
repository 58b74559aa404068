package swap

import (
	"container/list"

	"github.com/cockroachdb/swiss"

	"github.com/hupe1980/gridstore/internal/chunk"
)

// lru orders resident chunks from most to least recently used. It is not
// safe for concurrent use.
type lru struct {
	items *swiss.Map[chunk.ID, *list.Element]
	order *list.List
}

func newLRU() *lru {
	return &lru{
		items: swiss.New[chunk.ID, *list.Element](64),
		order: list.New(),
	}
}

// touch moves id to the front, adding it if absent.
func (l *lru) touch(id chunk.ID) {
	if e, ok := l.items.Get(id); ok {
		l.order.MoveToFront(e)
		return
	}
	l.items.Put(id, l.order.PushFront(id))
}

func (l *lru) remove(id chunk.ID) bool {
	e, ok := l.items.Get(id)
	if !ok {
		return false
	}
	l.order.Remove(e)
	l.items.Delete(id)
	return true
}

func (l *lru) contains(id chunk.ID) bool {
	_, ok := l.items.Get(id)
	return ok
}

func (l *lru) len() int { return l.items.Len() }

// victim returns the least recently used id accepted by ok.
func (l *lru) victim(ok func(chunk.ID) bool) (chunk.ID, bool) {
	for e := l.order.Back(); e != nil; e = e.Prev() {
		if id := e.Value.(chunk.ID); ok(id) {
			return id, true
		}
	}
	return chunk.ID{}, false
}

// ids returns every id, most recently used first.
func (l *lru) ids() []chunk.ID {
	out := make([]chunk.ID, 0, l.items.Len())
	for e := l.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(chunk.ID))
	}
	return out
}
