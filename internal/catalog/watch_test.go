package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const watchDoc = `
pools:
  people:
    - {name: Ada}
widgets:
  - kind: %s
    dwell: 2s
    rotation: [{name: only, target: 10}]
    feed: {pool: people, cap: 2, interval: 250ms}
`

func writeCatalog(t *testing.T, path, kind string) {
	t.Helper()
	doc := fmt.Sprintf(watchDoc, kind)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
}

func TestWatchAppliesValidRevisions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	writeCatalog(t, path, "first")

	var (
		mu    sync.Mutex
		kinds []string
	)
	apply := func(c *Catalog) {
		mu.Lock()
		defer mu.Unlock()
		kinds = c.Kinds()
	}
	current := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return kinds
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, apply, nil) }()

	// The watcher may not be registered yet, so keep rewriting until a
	// reload lands.
	require.Eventually(t, func() bool {
		writeCatalog(t, path, "second")
		got := current()
		return len(got) == 1 && got[0] == "second"
	}, 5*time.Second, 200*time.Millisecond)

	// A broken revision is skipped and the last good one stays applied.
	require.NoError(t, os.WriteFile(path, []byte("widgets: [{kind: bad}]"), 0o600))
	time.Sleep(3 * reloadDebounce)
	require.Equal(t, []string{"second"}, current())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "catalog.yaml")
	err := Watch(context.Background(), path, func(*Catalog) {}, nil)
	require.Error(t, err)
}
