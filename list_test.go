package uvloop

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListPushAndOrder(t *testing.T) {
	l := newList[int]()
	l.PushBack(1)
	l.PushBack(2)
	l.PushBack(3)

	var got []int
	l.Each(func(e *listElem[int]) { got = append(got, e.Value) })
	require.Equal(t, []int{1, 2, 3}, got)
	require.Equal(t, 3, l.Len())
}

func TestListPushFront(t *testing.T) {
	l := newList[int]()
	l.PushBack(2)
	l.PushFront(1)
	l.PushBack(3)

	var got []int
	l.Each(func(e *listElem[int]) { got = append(got, e.Value) })
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestListRemove(t *testing.T) {
	l := newList[int]()
	e1 := l.PushBack(1)
	e2 := l.PushBack(2)
	l.PushBack(3)

	l.Remove(e2)
	require.Equal(t, 2, l.Len())

	var got []int
	l.Each(func(e *listElem[int]) { got = append(got, e.Value) })
	require.Equal(t, []int{1, 3}, got)

	// double-remove is a no-op
	l.Remove(e2)
	require.Equal(t, 2, l.Len())

	l.Remove(e1)
	require.Equal(t, 1, l.Len())
}

func TestListEachToleratesRemovalDuringIteration(t *testing.T) {
	l := newList[int]()
	var elems []*listElem[int]
	for _, v := range []int{1, 2, 3, 4} {
		elems = append(elems, l.PushBack(v))
	}

	var got []int
	i := 0
	l.Each(func(e *listElem[int]) {
		got = append(got, e.Value)
		if i == 0 {
			// remove the next element while visiting the first
			l.Remove(elems[1])
		}
		i++
	})
	require.Equal(t, []int{1, 3, 4}, got)
}

func TestListDrainEach(t *testing.T) {
	l := newList[int]()
	l.PushBack(1)
	l.PushBack(2)

	var got []int
	l.DrainEach(func(v int) { got = append(got, v) })
	require.Equal(t, []int{1, 2}, got)
	require.Equal(t, 0, l.Len())
}

func TestListDrainEachSeesAppendsDuringPass(t *testing.T) {
	l := newList[int]()
	l.PushBack(1)

	var got []int
	l.DrainEach(func(v int) {
		got = append(got, v)
		if v == 1 {
			l.PushBack(2)
		}
	})
	require.Equal(t, []int{1, 2}, got)
}
