package recording

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/strongdm/aisen-agent/pkg/aisen"
)

func TestRecordingBackend_RecordsDeliveries(t *testing.T) {
	b := New()

	assert.NoError(t, b.Ping(context.Background()))
	b.Deliver(context.Background(), aisen.ErrorEvent{EventID: "evt-1"})
	b.Deliver(context.Background(), aisen.ErrorEvent{EventID: "evt-2"})

	assert.Equal(t, 1, b.Pings())
	assert.Equal(t, 2, b.Attempts())
	events := b.Events()
	assert.Len(t, events, 2)
	assert.Equal(t, "evt-1", events[0].EventID)
	assert.Equal(t, "evt-2", events[1].EventID)
}

func TestRecordingBackend_ScriptedResponses(t *testing.T) {
	b := New()
	b.Respond(aisen.ResponseFor(503, nil), aisen.ResponseFor(422, nil))

	first := b.Deliver(context.Background(), aisen.ErrorEvent{EventID: "evt-1"})
	second := b.Deliver(context.Background(), aisen.ErrorEvent{EventID: "evt-1"})
	third := b.Deliver(context.Background(), aisen.ErrorEvent{EventID: "evt-1"})

	assert.Equal(t, aisen.OutcomeTransient, first.Outcome())
	assert.Equal(t, aisen.OutcomeFatal, second.Outcome())
	assert.Equal(t, aisen.OutcomeDelivered, third.Outcome())
	assert.Len(t, b.Events(), 1)
	assert.Equal(t, 3, b.Attempts())
}

func TestRecordingBackend_FailPing(t *testing.T) {
	b := New()
	want := errors.New("unauthorized")

	b.FailPing(want)
	assert.ErrorIs(t, b.Ping(context.Background()), want)

	b.Reset()
	assert.NoError(t, b.Ping(context.Background()))
	assert.Equal(t, 1, b.Pings())
}
