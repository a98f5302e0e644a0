package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddIntervalFiresCallback(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Stop(context.Background())

	fired := make(chan struct{}, 1)
	_, err = s.Add("test-interval", "1s", false, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("interval schedule never fired")
	}
}

func TestAddIntervalAcceptsDayAndWeekUnits(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Stop(context.Background())

	_, err = s.Add("test-daily", "1d", false, func() {})
	require.NoError(t, err)

	_, err = s.Add("test-weekly", "2w", false, func() {})
	require.NoError(t, err)
}

func TestAddRunAtBeginFiresImmediately(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Stop(context.Background())

	fired := make(chan struct{}, 1)
	_, err = s.Add("test-immediate", "1h", true, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("runAtBegin schedule never fired immediately")
	}
}

func TestUnsubscribeRemovesSchedule(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Stop(context.Background())

	handle, err := s.Add("test-unsub", "1h", false, func() {})
	require.NoError(t, err)
	assert.NoError(t, handle.Unsubscribe())
	assert.Error(t, handle.Unsubscribe())
}

func TestInvalidExpressionRejected(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	defer s.Stop(context.Background())

	_, err = s.Add("bad", "not-a-duration", false, func() {})
	assert.Error(t, err)
}
