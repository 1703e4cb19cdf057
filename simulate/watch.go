package simulate

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sshcollectorpro/junosconnect/pkg/logger"
)

const reloadDebounce = 300 * time.Millisecond

// WatchTableFile 监听应答文件变化，防抖后重新加载并回调
// 监听所在目录以兼容编辑器的重命名式保存；ctx 结束时返回
func WatchTableFile(ctx context.Context, path string, onReload func(*Table)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to init fixture watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	var debounce *time.Timer
	trigger := func() {
		t, err := LoadTableFile(abs)
		if err != nil {
			logger.Warnf("fixture reload failed: %v", err)
			return
		}
		logger.Infof("fixtures reloaded from %s (%d entries)", path, t.Len())
		onReload(t)
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, trigger)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("fixture watcher error: %v", err)
		}
	}
}
