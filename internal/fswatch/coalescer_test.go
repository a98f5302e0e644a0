package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gallofeliz/hen-backup/internal/pathmatch"
)

func TestCoalescerFiresOnceAfterBurst(t *testing.T) {
	dir := t.TempDir()

	fired := make(chan struct{}, 1)
	c, err := New([]string{dir}, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, WithWaitMin(50*time.Millisecond), WithWaitMax(500*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestCoalescerRespectsIgnorePatterns(t *testing.T) {
	dir := t.TempDir()

	fired := make(chan struct{}, 1)
	c, err := New([]string{dir}, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, WithIgnore(pathmatch.New([]string{"*.tmp"})), WithWaitMin(50*time.Millisecond), WithWaitMax(200*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	assert.NotNil(t, c)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.tmp"), []byte("x"), 0o644))

	select {
	case <-fired:
		t.Fatal("callback fired for an ignored path")
	case <-time.After(500 * time.Millisecond):
	}
}
