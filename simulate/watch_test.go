package simulate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchTableFileReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fixtures:\n  - match: show arp\n    output: v1\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan *Table, 4)
	done := make(chan error, 1)
	go func() { done <- WatchTableFile(ctx, path, func(t *Table) { reloaded <- t }) }()

	// 等待监听就绪
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("fixtures:\n  - match: show arp\n    output: v2\n"), 0o644))

	select {
	case table := <-reloaded:
		assert.Equal(t, "v2", table.Lookup("show arp").Output)
	case <-time.After(5 * time.Second):
		t.Fatal("文件修改后未触发重新加载")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ctx 取消后监听未退出")
	}
}
