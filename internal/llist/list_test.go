package llist_test

import (
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/danwails/lfconcurrent/internal/hazard"
	"github.com/danwails/lfconcurrent/internal/llist"
)

type node struct {
	value int
	next  atomic.Pointer[node]
}

func (n *node) GetNext() *node  { return n.next.Load() }
func (n *node) SetNext(p *node) { n.next.Store(p) }
func (n *node) CompareAndSwapNext(old, new *node) bool {
	return n.next.CompareAndSwap(old, new)
}

func newList() *llist.List[node, *node] {
	return llist.NewList[node, *node](hazard.NewRegistry[node]())
}

func collect(l *llist.List[node, *node]) []int {
	var out []int
	for n := range l.IterateSnapshot() {
		out = append(out, n.value)
	}
	return out
}

func TestPushFrontIsLIFOOrder(t *testing.T) {
	Convey("Given three values pushed to the front", t, func() {
		l := newList()
		l.PushFront(&node{value: 1})
		l.PushFront(&node{value: 2})
		l.PushFront(&node{value: 3})

		Convey("Then a snapshot visits them most-recent-first", func() {
			So(collect(l), ShouldResemble, []int{3, 2, 1})
		})
	})
}

func TestPushBackIsFIFOOrder(t *testing.T) {
	l := newList()
	l.PushBack(&node{value: 1})
	l.PushBack(&node{value: 2})
	l.PushBack(&node{value: 3})
	assert.Equal(t, []int{1, 2, 3}, collect(l))
}

func TestPopFrontRemovesHead(t *testing.T) {
	l := newList()
	l.PushBack(&node{value: 1})
	l.PushBack(&node{value: 2})

	got := l.PopFront()
	require.NotNil(t, got)
	assert.Equal(t, 1, got.value)
	assert.Equal(t, []int{2}, collect(l))

	got = l.PopFront()
	require.NotNil(t, got)
	assert.Equal(t, 2, got.value)
	assert.Nil(t, l.PopFront())
}

func TestIterateSnapshotOverEmptyListYieldsNothing(t *testing.T) {
	l := newList()
	assert.Empty(t, collect(l))
}

func TestConcurrentPushBackNeverLosesNodes(t *testing.T) {
	l := newList()
	const perWorker = 200
	const workers = 8

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		w := w
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				l.PushBack(&node{value: w*perWorker + i})
			}
		}()
	}
	wg.Wait()

	seen := make(map[int]bool, workers*perWorker)
	for _, v := range collect(l) {
		assert.False(t, seen[v], "duplicate value %d in snapshot", v)
		seen[v] = true
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestConcurrentPushFrontAndPopFrontPreserveCount(t *testing.T) {
	l := newList()
	const total = 500

	var eg errgroup.Group
	for i := 0; i < total; i++ {
		i := i
		eg.Go(func() error {
			l.PushFront(&node{value: i})
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	popped := 0
	for l.PopFront() != nil {
		popped++
	}
	assert.Equal(t, total, popped)
}
