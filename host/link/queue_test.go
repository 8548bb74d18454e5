package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDropOldest(t *testing.T) {
	q := newQueue[int](3, DropOldest)
	for i := 1; i <= 3; i++ {
		assert.Zero(t, q.push(i))
	}
	assert.Equal(t, 1, q.push(4))
	assert.Equal(t, 3, q.len())

	var got []int
	for {
		v, ok := q.tryPop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{2, 3, 4}, got)
}

func TestQueueDropNewest(t *testing.T) {
	q := newQueue[int](2, DropNewest)
	assert.Zero(t, q.push(1))
	assert.Zero(t, q.push(2))
	assert.Equal(t, 1, q.push(3))

	v, ok := q.tryPop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = q.tryPop()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = q.tryPop()
	assert.False(t, ok)
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := ParseOverflowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DropOldest, p)

	p, err = ParseOverflowPolicy("drop_newest")
	require.NoError(t, err)
	assert.Equal(t, DropNewest, p)

	_, err = ParseOverflowPolicy("block")
	assert.Error(t, err)
}
