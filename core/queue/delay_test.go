package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayQueue_NotDue(t *testing.T) {
	q := newDelayQueue()
	q.Schedule(NewItem("u", "t", nil, PriorityNormal), time.Now().Add(time.Hour))

	assert.Nil(t, q.PopDue())
	assert.Equal(t, 1, q.Len())
}

func TestDelayQueue_OldestDueFirst(t *testing.T) {
	q := newDelayQueue()
	now := time.Now()

	late := NewItem("u", "late", nil, PriorityNormal)
	early := NewItem("u", "early", nil, PriorityNormal)
	future := NewItem("u", "future", nil, PriorityNormal)

	q.Schedule(late, now.Add(-time.Second))
	q.Schedule(early, now.Add(-time.Minute))
	q.Schedule(future, now.Add(time.Hour))

	first := q.PopDue()
	require.NotNil(t, first)
	assert.Equal(t, "early", first.Type)

	second := q.PopDue()
	require.NotNil(t, second)
	assert.Equal(t, "late", second.Type)

	assert.Nil(t, q.PopDue())
	assert.Equal(t, 1, q.Len())
}

func TestDelayQueue_BecomesDue(t *testing.T) {
	q := newDelayQueue()
	q.Schedule(NewItem("u", "t", nil, PriorityNormal), time.Now().Add(15*time.Millisecond))

	assert.Nil(t, q.PopDue())
	time.Sleep(30 * time.Millisecond)
	assert.NotNil(t, q.PopDue())
}
