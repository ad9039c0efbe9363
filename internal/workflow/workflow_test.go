// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nipart.dev/nipart/internal/event"
)

func TestWorkflowProcessSendsInitialRequestOnce(t *testing.T) {
	task := NewTask(uuid.New(), KindQueryNetState, 1, time.Minute)
	sentCount := 0
	requests := []RequestBuilder{func(tt *Task, s *ShareData) event.Event {
		sentCount++
		return event.Event{Kind: "QueryNetState"}
	}}
	w := New("query", task.UUID, []*Task{task}, []Callback{nil}, requests)

	events, err := w.Process(&ShareData{})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	events, err = w.Process(&ShareData{})
	require.NoError(t, err)
	assert.Empty(t, events, "second Process call before the task is done sends nothing more")
	assert.Equal(t, 1, sentCount)
}

func TestWorkflowAdvancesToNextTaskWhenCurrentIsDone(t *testing.T) {
	id := uuid.New()
	t1 := NewTask(id, KindQueryRelatedNetState, 1, time.Minute)
	t2 := NewTask(id, KindApplyNetState, 1, time.Minute)
	requests := []RequestBuilder{
		func(tt *Task, s *ShareData) event.Event { return event.Event{Kind: "first"} },
		func(tt *Task, s *ShareData) event.Event { return event.Event{Kind: "second"} },
	}
	w := New("apply", id, []*Task{t1, t2}, []Callback{nil, nil}, requests)
	share := &ShareData{}

	_, err := w.Process(share) // sends first request
	require.NoError(t, err)

	t1.AddReply(event.Event{UUID: id})
	events, err := w.Process(share)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "second", events[0].Kind)
}

func TestWorkflowExpiresPastDeadline(t *testing.T) {
	id := uuid.New()
	task := NewTask(id, KindQueryNetState, 1, -time.Second) // already expired
	requests := []RequestBuilder{func(tt *Task, s *ShareData) event.Event { return event.Event{} }}
	w := New("query", id, []*Task{task}, []Callback{nil}, requests)
	share := &ShareData{}

	_, err := w.Process(share)
	require.NoError(t, err)

	events, err := w.Process(share)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Error", events[0].Kind)
	assert.True(t, w.IsFailed())
}

func TestWorkflowRetriesTaskOnCallbackError(t *testing.T) {
	id := uuid.New()
	task := NewTask(id, KindQueryRelatedNetState, 1, time.Minute)
	task.SetRetry(2, time.Millisecond)

	attempts := 0
	callbacks := []Callback{func(tt *Task, s *ShareData) (*event.Event, error) {
		attempts++
		return nil, errors.New("transient failure")
	}}
	requests := []RequestBuilder{func(tt *Task, s *ShareData) event.Event { return event.Event{Kind: "retry"} }}
	w := New("verify", id, []*Task{task}, callbacks, requests)
	share := &ShareData{}

	_, err := w.Process(share) // initial request
	require.NoError(t, err)

	task.AddReply(event.Event{UUID: id})
	events, err := w.Process(share)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "retry", events[0].Kind)
	assert.Equal(t, 1, attempts)
	assert.False(t, w.IsFailed())
}

func TestWorkflowFailsWhenRetriesExhausted(t *testing.T) {
	id := uuid.New()
	task := NewTask(id, KindQueryRelatedNetState, 1, time.Minute)
	callbacks := []Callback{func(tt *Task, s *ShareData) (*event.Event, error) {
		return nil, errors.New("permanent failure")
	}}
	requests := []RequestBuilder{func(tt *Task, s *ShareData) event.Event { return event.Event{} }}
	w := New("verify", id, []*Task{task}, callbacks, requests)
	share := &ShareData{}

	_, _ = w.Process(share)
	task.AddReply(event.Event{UUID: id})
	events, err := w.Process(share)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Error", events[0].Kind)
	assert.True(t, w.IsFailed())
}

func TestQueueTickReapsDoneWorkflow(t *testing.T) {
	id := uuid.New()
	task := NewTask(id, KindQueryNetState, 1, time.Minute)
	requests := []RequestBuilder{func(tt *Task, s *ShareData) event.Event { return event.Event{Kind: "query"} }}
	w := New("query", id, []*Task{task}, []Callback{func(tt *Task, s *ShareData) (*event.Event, error) {
		reply := event.Event{Kind: "QueryNetStateReply"}
		return &reply, nil
	}}, requests)

	q := NewQueue(nil)
	_, err := q.Add(w, &ShareData{})
	require.NoError(t, err)
	assert.Equal(t, 1, q.Len())

	task.AddReply(event.Event{UUID: id})
	events, reaped, err := q.Tick()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "QueryNetStateReply", events[0].Kind)
	assert.Equal(t, 0, q.Len())
	require.Len(t, reaped, 1)
	assert.False(t, reaped[0].Failed)
}

func TestQueueAddReplyRoutesToMatchingWorkflow(t *testing.T) {
	id := uuid.New()
	task := NewTask(id, KindQueryNetState, 2, time.Minute)
	requests := []RequestBuilder{func(tt *Task, s *ShareData) event.Event { return event.Event{} }}
	w := New("query", id, []*Task{task}, []Callback{nil}, requests)

	q := NewQueue(nil)
	_, _ = q.Add(w, &ShareData{})

	q.AddReply(event.Event{UUID: id})
	q.AddReply(event.Event{UUID: uuid.New()}) // unrelated, dropped

	assert.Len(t, task.Replies, 1)
}
