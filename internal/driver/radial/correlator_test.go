package radial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindSetMatches(t *testing.T) {
	testCases := []struct {
		name  string
		set   KindSet
		kind  Kind
		match bool
	}{
		{name: "listed", set: KindsOf(KindSaveSuccess, KindSaveFailed), kind: KindSaveFailed, match: true},
		{name: "unlisted", set: KindsOf(KindSaveSuccess), kind: KindKeyValue, match: false},
		{name: "any accepts status", set: AnyKind(), kind: KindStatus, match: true},
		{name: "any rejects heartbeat", set: AnyKind(), kind: KindHeartbeat, match: false},
		{name: "any rejects mode timeout", set: AnyKind(), kind: KindModeTimedOut, match: false},
		{name: "explicit mode timeout", set: KindsOf(KindModeEnabled, KindModeTimedOut), kind: KindModeTimedOut, match: true},
		{name: "any with control", set: AnyKind(KindModeTimedOut), kind: KindModeTimedOut, match: true},
		{name: "any with control keeps guard", set: AnyKind(KindModeTimedOut), kind: KindHeartbeat, match: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.match, tc.set.Matches(tc.kind))
		})
	}
}

func TestCorrelatorResolvesMatchingLine(t *testing.T) {
	c := NewCorrelator(4)
	p, err := c.Await("save", KindsOf(KindSaveSuccess), time.Now().Add(time.Second))
	require.NoError(t, err)

	require.True(t, c.Dispatch(Line{Kind: KindKeyValue, Key: "led_count", Value: 5}))
	require.NotNil(t, c.Pending())
	require.True(t, c.Dispatch(Line{Kind: KindSaveSuccess, Text: "save_settings_success"}))
	assert.Nil(t, c.Pending())

	resp := <-p.Result()
	require.NoError(t, resp.Err)
	assert.Equal(t, KindSaveSuccess, resp.Line.Kind)

	ambient := <-c.Ambient()
	assert.Equal(t, "led_count", ambient.Key)
}

func TestCorrelatorTimesOutOnNonMatchingLines(t *testing.T) {
	c := NewCorrelator(8)
	start := time.Now()
	p, err := c.Await("save", KindsOf(KindSaveSuccess), start.Add(50*time.Millisecond))
	require.NoError(t, err)

	c.Dispatch(Line{Kind: KindKeyValue, Key: "brightness", Value: 2})
	c.Dispatch(Line{Kind: KindLoadSuccess})
	c.Dispatch(Line{Kind: KindStatus, Text: "hello"})

	assert.False(t, c.Expire(start.Add(10*time.Millisecond)))
	assert.True(t, c.Expire(start.Add(50*time.Millisecond)))

	resp := <-p.Result()
	require.ErrorIs(t, resp.Err, ErrTimeout)
	assert.Nil(t, c.Pending())
	assert.Len(t, c.Ambient(), 3)
}

func TestCorrelatorSingleOutstandingRequest(t *testing.T) {
	c := NewCorrelator(1)
	_, err := c.Await("load", AnyKind(), time.Now().Add(time.Second))
	require.NoError(t, err)

	_, err = c.Await("save", AnyKind(), time.Now().Add(time.Second))
	require.ErrorIs(t, err, ErrRequestInFlight)
}

func TestCorrelatorHeartbeatNotMistakenForReply(t *testing.T) {
	c := NewCorrelator(1)
	p, err := c.Await("load", AnyKind(), time.Now().Add(time.Second))
	require.NoError(t, err)

	c.Dispatch(Line{Kind: KindHeartbeat, Text: "heartbeat"})
	assert.NotNil(t, c.Pending())
	assert.Len(t, p.Result(), 0)
}

func TestCorrelatorAbort(t *testing.T) {
	c := NewCorrelator(1)
	c.Abort(ErrConnectionLost)

	p, err := c.Await("load", AnyKind(), time.Now().Add(time.Second))
	require.NoError(t, err)
	c.Abort(ErrConnectionLost)

	resp := <-p.Result()
	require.ErrorIs(t, resp.Err, ErrConnectionLost)
	assert.Nil(t, c.Pending())
}

func TestCorrelatorAmbientOverflow(t *testing.T) {
	c := NewCorrelator(1)
	assert.True(t, c.Dispatch(Line{Kind: KindStatus}))
	assert.False(t, c.Dispatch(Line{Kind: KindStatus}))
}
