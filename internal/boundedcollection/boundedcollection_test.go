package boundedcollection

import (
	"errors"
	"testing"

	"github.com/avrabe/wrt/internal/werr"
	"github.com/stretchr/testify/require"
)

func TestBoundedVecCapacityExceeded(t *testing.T) {
	v := NewBoundedVec[int](2)
	require.NoError(t, v.Push(1))
	require.NoError(t, v.Push(2))
	err := v.Push(3)
	require.True(t, errors.Is(err, werr.ErrCapacityExceeded))
	require.Equal(t, 2, v.Len())
}

func TestBoundedVecGetSetOutOfRange(t *testing.T) {
	v := NewBoundedVec[string](4)
	require.NoError(t, v.Push("a"))
	_, err := v.Get(5)
	require.True(t, errors.Is(err, werr.ErrIndexOutOfRange))
	require.True(t, errors.Is(v.Set(5, "x"), werr.ErrIndexOutOfRange))
}

func TestBoundedStackPushPopPeek(t *testing.T) {
	s := NewBoundedStack[uint64](3)
	require.NoError(t, s.Push(10))
	require.NoError(t, s.Push(20))

	top, err := s.Peek()
	require.NoError(t, err)
	require.Equal(t, uint64(20), top)

	v, err := s.Pop()
	require.NoError(t, err)
	require.Equal(t, uint64(20), v)
	require.Equal(t, 1, s.Len())
}

func TestBoundedStackOverflow(t *testing.T) {
	s := NewBoundedStack[int](1)
	require.NoError(t, s.Push(1))
	require.True(t, errors.Is(s.Push(2), werr.ErrStackOverflow))
}

func TestBoundedStackPopEmpty(t *testing.T) {
	s := NewBoundedStack[int](1)
	_, err := s.Pop()
	require.True(t, errors.Is(err, werr.ErrStackOverflow))
}

func TestBoundedStackPeekN(t *testing.T) {
	s := NewBoundedStack[int](4)
	require.NoError(t, s.Push(1))
	require.NoError(t, s.Push(2))
	require.NoError(t, s.Push(3))

	got, err := s.PeekN(2)
	require.NoError(t, err)
	require.Equal(t, []int{2, 3}, got)
}

func TestBoundedStackDropRangeFromTop(t *testing.T) {
	s := NewBoundedStack[int](4)
	for _, v := range []int{1, 2, 3, 4} {
		require.NoError(t, s.Push(v))
	}
	// Start==0, End==0 drops exactly the top element.
	require.NoError(t, s.DropRange(0, 0))
	got, err := s.PeekN(3)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestBoundedStackDropRangeKeepsTopValues(t *testing.T) {
	s := NewBoundedStack[int](4)
	for _, v := range []int{1, 2, 3, 4} {
		require.NoError(t, s.Push(v))
	}
	// keep top 1 value (4), drop the next 2 (2,3), leave 1
	require.NoError(t, s.DropRange(1, 2))
	got, err := s.PeekN(2)
	require.NoError(t, err)
	require.Equal(t, []int{1, 4}, got)
}

func TestBoundedMapPutGetDelete(t *testing.T) {
	m := NewBoundedMap[string, int](2)
	require.NoError(t, m.Put("a", 1))
	require.NoError(t, m.Put("b", 2))
	err := m.Put("c", 3)
	require.True(t, errors.Is(err, werr.ErrCapacityExceeded))

	v, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	m.Delete("a")
	_, ok = m.Get("a")
	require.False(t, ok)
	require.NoError(t, m.Put("c", 3))
}

func TestBoundedMapUpdateExistingKeyDoesNotConsumeCapacity(t *testing.T) {
	m := NewBoundedMap[int, int](1)
	require.NoError(t, m.Put(1, 100))
	require.NoError(t, m.Put(1, 200))
	v, ok := m.Get(1)
	require.True(t, ok)
	require.Equal(t, 200, v)
}
