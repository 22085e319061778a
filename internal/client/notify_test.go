package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierExpires(t *testing.T) {
	n := NewNotifier(30 * time.Millisecond)
	defer n.Stop()
	n.Show("hello")
	msg, ok := n.Current()
	require.True(t, ok)
	assert.Equal(t, "hello", msg)
	assert.Eventually(t, func() bool {
		_, ok := n.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestNotifierPreempts(t *testing.T) {
	n := NewNotifier(80 * time.Millisecond)
	defer n.Stop()
	var mu sync.Mutex
	var seen []string
	n.Watch(func(msg string) {
		mu.Lock()
		seen = append(seen, msg)
		mu.Unlock()
	})

	n.Show("first")
	time.Sleep(50 * time.Millisecond)
	n.Show("second")
	// the first timer would have fired by now; the second restarted it
	time.Sleep(50 * time.Millisecond)
	msg, ok := n.Current()
	require.True(t, ok)
	assert.Equal(t, "second", msg)

	assert.Eventually(t, func() bool {
		_, ok := n.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", ""}, seen)
}

func TestNotifierStop(t *testing.T) {
	n := NewNotifier(time.Minute)
	n.Stop()
	n.Show("ignored")
	_, ok := n.Current()
	assert.False(t, ok)
	assert.Equal(t, DefaultNotificationTimeout, NewNotifier(0).d)
}
