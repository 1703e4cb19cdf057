package simulate

import (
	"path/filepath"
	"testing"

	"github.com/sshcollectorpro/junosconnect/internal/config"
	"github.com/sshcollectorpro/junosconnect/internal/database"
	"github.com/sshcollectorpro/junosconnect/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "sim.db")})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestSeedAndLoadFromDB(t *testing.T) {
	db := openTestDB(t)

	n, err := SeedDB(db, Platform, NewTable(
		Fixture{Match: "show bgp summary", Output: "Peers: 2\n"},
		Fixture{Match: "show version", Output: "Junos: 23.4R1.10\n"},
	))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = SeedDB(db, Platform, NewTable(Fixture{Match: "SHOW BGP SUMMARY", Output: "dup"}))
	require.NoError(t, err)
	assert.Equal(t, 0, n, "已存在的命令不重复写入")

	require.NoError(t, db.Create(&model.SimCommand{Platform: "other", Command: "show arp", Output: "x"}).Error)

	table, err := LoadTableFromDB(db, Platform)
	require.NoError(t, err)
	assert.Equal(t, "Peers: 2\n", table.Lookup("show bgp summary").Output)
	assert.Equal(t, "Junos: 23.4R1.10\n", table.Lookup("show version").Output, "数据库记录覆盖内置应答")
	assert.Equal(t, 1, table.Lookup("show arp").ExitCode, "其他平台的记录不加载")
	assert.Contains(t, table.Lookup("show chassis hardware").Output, "Hardware inventory")
}
