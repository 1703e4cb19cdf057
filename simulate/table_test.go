package simulate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupLongestMatch(t *testing.T) {
	table := DefaultTable()

	resp := table.Lookup("show configuration system | display set")
	assert.Equal(t, 0, resp.ExitCode)
	assert.Contains(t, resp.Output, "host-name vsrx01", "应命中更长的 show configuration system")

	resp = table.Lookup("SHOW VERSION")
	assert.Contains(t, resp.Output, "12.1X47-D15.4", "匹配不区分大小写")
}

func TestLookupUnknown(t *testing.T) {
	resp := NewTable().Lookup("frobnicate now")
	assert.Equal(t, 1, resp.ExitCode)
	assert.Equal(t, "error: unknown command: frobnicate\n", resp.Output)
}

func TestSetDeleteMerge(t *testing.T) {
	table := NewTable(Fixture{Match: "show arp", Output: "old"})
	table.Set(Fixture{Match: "  SHOW ARP ", Output: "new"})
	assert.Equal(t, 1, table.Len(), "同名条目覆盖而不是追加")
	assert.Equal(t, "new", table.Lookup("show arp").Output)

	table.Set(Fixture{Match: "   "})
	assert.Equal(t, 1, table.Len(), "空匹配串被忽略")

	table.Merge(NewTable(Fixture{Match: "show bgp summary", Output: "bgp", ExitCode: 0}))
	assert.Equal(t, 2, table.Len())

	assert.True(t, table.Delete("show arp"))
	assert.False(t, table.Delete("show arp"))

	fixtures := table.Fixtures()
	require.Len(t, fixtures, 1)
	assert.Equal(t, "show bgp summary", fixtures[0].Match)
}

func TestLoadTableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	body := `
defaults: true
fixtures:
  - match: show bgp summary
    output: |
      Groups: 1 Peers: 2 Down peers: 0
  - match: show version
    output: "Junos: 23.4R1.10\n"
  - match: request system reboot
    output: "error: permission denied\n"
    exit_code: 1
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	table, err := LoadTableFile(path)
	require.NoError(t, err)
	assert.Contains(t, table.Lookup("show bgp summary").Output, "Peers: 2")
	assert.Equal(t, "Junos: 23.4R1.10\n", table.Lookup("show version").Output, "文件条目覆盖内置应答")
	assert.Contains(t, table.Lookup("show chassis hardware").Output, "Hardware inventory", "defaults 为 true 时保留内置应答")
	assert.Equal(t, 1, table.Lookup("request system reboot").ExitCode)
}

func TestLoadTableFileWithoutDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fixtures:\n  - match: show arp\n    output: arp\n"), 0o644))

	table, err := LoadTableFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, 1, table.Lookup("show version").ExitCode)
}

func TestWriteTableFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, WriteTableFile(path, DefaultTable()))

	table, err := LoadTableFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultTable().Len(), table.Len())
}

func TestLoadTableFileDelay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slow.yaml")
	body := `
fixtures:
  - match: show log messages
    output: "Oct 19 10:02:11 vsrx01 sshd[1203]: Accepted password for admin"
    delay: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	table, err := LoadTableFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, table.Lookup("show log messages").Delay)
	assert.Zero(t, table.Lookup("show version").Delay)
}

func TestLoadTableFileErrors(t *testing.T) {
	_, err := LoadTableFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fixtures: [\n"), 0o644))
	_, err = LoadTableFile(path)
	assert.Error(t, err)
}
