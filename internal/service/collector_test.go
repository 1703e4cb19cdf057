package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sshcollectorpro/junosconnect/internal/config"
	"github.com/sshcollectorpro/junosconnect/internal/database"
	"github.com/sshcollectorpro/junosconnect/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simulatedTarget(host string) map[string]any {
	return map[string]any{"host": host, "user": "admin", "simulated": true}
}

func TestCollectSimulated(t *testing.T) {
	base := t.TempDir()
	db, err := database.Open(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	collector := NewCollector(
		WithStorage(NewStorageWriter(config.ArchiveConfig{
			Prefix: "junos",
			Local:  config.LocalArchiveConfig{BaseDir: base, MkdirIfMissing: true},
		})),
		WithDB(db),
		WithConcurrency(2),
	)

	targets := []map[string]any{simulatedTarget("r1"), simulatedTarget("r2"), simulatedTarget("r3")}
	commands := []string{"show version", "show chassis hardware", "show bogus"}
	run, err := collector.Collect(context.Background(), targets, commands)
	require.NoError(t, err)
	require.Len(t, run.Devices, 3)
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, 3, run.Failed, "每台设备都有一条未知命令")

	for i, d := range run.Devices {
		assert.Equal(t, targets[i]["host"], d.Target, "报告顺序与目标顺序一致")
		assert.Empty(t, d.Error)
		assert.Equal(t, "12.1X47-D15.4", d.Facts.Version)
		require.Len(t, d.Commands, 3)

		version := d.Commands[0]
		assert.Equal(t, 0, version.ExitCode)
		require.NotNil(t, version.Object)
		data, err := os.ReadFile(strings.TrimPrefix(version.Object.URI, "file://"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "Junos: 12.1X47-D15.4")

		bogus := d.Commands[2]
		assert.Equal(t, 1, bogus.ExitCode)
		assert.Contains(t, bogus.Error, "unknown command")
	}

	var logs []model.CommandLog
	require.NoError(t, db.Where("run_id = ?", run.RunID).Find(&logs).Error)
	assert.Len(t, logs, 9)
}

func TestCollectPerDeviceErrors(t *testing.T) {
	collector := NewCollector()
	targets := []map[string]any{
		{"user": "admin", "simulated": true},
		simulatedTarget("r2"),
	}
	run, err := collector.Collect(context.Background(), targets, []string{"show version", "show version; request system reboot"})
	require.NoError(t, err)

	assert.Contains(t, run.Devices[0].Error, "host", "参数错误只影响该设备")
	assert.Nil(t, run.Devices[0].Commands)

	rejected := run.Devices[1].Commands[1]
	assert.Equal(t, -1, rejected.ExitCode)
	assert.NotEmpty(t, rejected.Error)
	assert.Nil(t, rejected.Object)
	assert.Equal(t, 2, run.Failed)
}

func TestCollectArguments(t *testing.T) {
	collector := NewCollector()
	_, err := collector.Collect(context.Background(), nil, []string{"show version"})
	assert.Error(t, err)
	_, err = collector.Collect(context.Background(), []map[string]any{simulatedTarget("r1")}, nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = collector.Collect(ctx, []map[string]any{simulatedTarget("r1")}, []string{"show version"})
	assert.ErrorIs(t, err, context.Canceled)
}
