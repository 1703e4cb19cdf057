package junos

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sshcollectorpro/junosconnect/pkg/ssh"
	"github.com/sshcollectorpro/junosconnect/simulate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedExecute(t *testing.T) {
	conn, err := NewFromMap(map[string]any{"host": "vsrx01", "user": "admin", "simulated": true})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, conn.Connect(ctx))
	assert.True(t, conn.IsConnected())

	res, err := conn.Execute(ctx, "show version")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, "12.1X47-D15.4")

	res, err = conn.Execute(ctx, "show chassis hardware")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, "Hardware inventory")

	res, err = conn.Execute(ctx, "totally bogus command")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.NotEmpty(t, res.Stderr)

	require.NoError(t, conn.Close())
	assert.True(t, conn.IsConnected(), "模拟模式下始终视为已连接")
}

func TestSimulatedCustomFixtures(t *testing.T) {
	table := simulate.NewTable(
		simulate.Fixture{Match: "show system alarms", Output: "No alarms currently active\n"},
		simulate.Fixture{Match: "show bgp summary", Output: "error: the routing subsystem is not running\n"},
	)
	conn := New(mustOptions(t, map[string]any{"simulated": true}), WithFixtures(table))

	res, err := conn.Execute(context.Background(), "show system alarms")
	require.NoError(t, err)
	assert.Equal(t, "No alarms currently active\n", res.Stdout)

	res, err = conn.Execute(context.Background(), "show bgp summary")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode, "设备错误文本判定为失败")
}

func TestBastionSimulatedConstruction(t *testing.T) {
	conn, err := NewFromMap(map[string]any{
		"host":         "dev1",
		"user":         "admin",
		"bastion_host": "jump1",
		"bastion_user": "netops",
		"bastion_port": 2222,
		"simulated":    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "netops@jump1:2222", conn.ProxyJump())

	res, err := conn.Execute(context.Background(), "show version")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestProxyPlanFromOptions(t *testing.T) {
	linux := ssh.Environment{GOOS: "linux", LookPath: func(string) (string, error) { return "", errors.New("not found") }}
	conn := New(mustOptions(t, map[string]any{"bastion_host": "jump1", "bastion_password": "pw"}), WithEnvironment(linux))
	assert.Equal(t, ssh.ProxyNativeJump, conn.ProxyPlan().Kind)

	windows := ssh.Environment{GOOS: "windows", LookPath: func(string) (string, error) { return `C:\tools\plink.exe`, nil }}
	conn = New(mustOptions(t, map[string]any{"bastion_host": "jump1", "bastion_password": "pw"}), WithEnvironment(windows))
	assert.Equal(t, ssh.ProxyPasswordRelay, conn.ProxyPlan().Kind)

	conn = New(mustOptions(t, nil), WithEnvironment(linux))
	assert.Equal(t, ssh.ProxyNone, conn.ProxyPlan().Kind)
}

func TestExecuteRejectsBeforeIO(t *testing.T) {
	ft := newFakeTransport()
	conn := New(mustOptions(t, nil), WithTransport(ft))

	_, err := conn.Execute(context.Background(), "show version; request system reboot")
	var rej *CommandRejectedError
	require.ErrorAs(t, err, &rej)
	assert.False(t, ft.connected, "拒绝的命令不应触发建连")
	assert.Empty(t, ft.calls)
}

func TestExecuteAutoConnects(t *testing.T) {
	ft := newFakeTransport()
	ft.outputs["show system uptime"] = "Current time: 2026-10-19 08:30:12 UTC\n%"
	conn := New(mustOptions(t, nil), WithTransport(ft))

	res, err := conn.Execute(context.Background(), "show system uptime")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "Current time: 2026-10-19 08:30:12 UTC", res.Stdout)

	require.GreaterOrEqual(t, len(ft.calls), 4)
	assert.Equal(t, []string{ProbeCommand, TuningCommands[0], TuningCommands[1]}, ft.calls[:3])
	assert.True(t, conn.IsConnected())
}

func TestExecuteDeviceError(t *testing.T) {
	ft := newFakeTransport()
	ft.outputs["show interfaces foo"] = "error: device foo not found\n"
	conn := New(mustOptions(t, nil), WithTransport(ft))
	require.NoError(t, conn.Connect(context.Background()))

	res, err := conn.Execute(context.Background(), "show interfaces foo")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Stderr, "error: device foo not found")
	assert.Empty(t, res.Stdout)
}

func TestExecuteEchoNotClassified(t *testing.T) {
	ft := newFakeTransport()
	cmd := `show log messages | match "syntax error"`
	ft.outputs[cmd] = "Oct 19 10:02:11 vsrx01 sshd[1203]: Accepted password for admin\n"
	conn := New(mustOptions(t, nil), WithTransport(ft))
	require.NoError(t, conn.Connect(context.Background()))

	res, err := conn.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode, "回显中的错误关键字不应判为设备报错")
	assert.Empty(t, res.Stderr)
	assert.Contains(t, res.Stdout, "Accepted password for admin")
	assert.NotContains(t, res.Stdout, "match", "回显行应被去掉")

	ft.outputs[cmd] = "error: syntax error, expecting <command>\n"
	res, err = conn.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode, "设备自身输出的错误仍判为失败")
	assert.Contains(t, res.Stderr, "expecting <command>")
}

func TestExecuteTransportFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.failures["show route"] = errors.New("timed out after 30s waiting for prompt")
	conn := New(mustOptions(t, nil), WithTransport(ft))
	require.NoError(t, conn.Connect(context.Background()))

	res, err := conn.Execute(context.Background(), "show route")
	require.NoError(t, err, "收发异常转为失败结果")
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Stderr, "timed out")
}

func TestExecuteReconnectsAfterDesync(t *testing.T) {
	ft := newFakeTransport()
	ft.dropOnFailure = true
	ft.failures["show log messages"] = errors.New("timed out after 30s waiting for prompt")
	ft.outputs["show version"] = "Junos: 12.1X47-D15.4\n"
	conn := New(mustOptions(t, nil), WithTransport(ft))
	ctx := context.Background()
	require.NoError(t, conn.Connect(ctx))

	res, err := conn.Execute(ctx, "show log messages")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.False(t, conn.IsConnected(), "超时后的会话不再视为已连接")

	res, err = conn.Execute(ctx, "show version")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode, res.Stderr)
	assert.Contains(t, res.Stdout, "12.1X47-D15.4")
	assert.Equal(t, 2, ft.connects, "下一条命令自动重新建连")
	assert.Equal(t, 2, ft.count(ProbeCommand))
}

func TestConnectFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.connectErr = errors.New("ssh: handshake failed: ssh: unable to authenticate")
	conn := New(mustOptions(t, map[string]any{"bastion_host": "jump1"}), WithTransport(ft))

	err := conn.Connect(context.Background())
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Error(), "Possible causes:")
	assert.ErrorIs(t, err, ft.connectErr)
	assert.False(t, conn.IsConnected())
	assert.Equal(t, 1, ft.closed)

	_, err = conn.Execute(context.Background(), "show version")
	assert.ErrorAs(t, err, &terr, "自动建连失败时返回 TransportError")
}

func TestConnectProbeFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.failures[ProbeCommand] = errors.New("session closed by remote host")
	conn := New(mustOptions(t, nil), WithTransport(ft))

	err := conn.Connect(context.Background())
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, err.Error(), "session probe failed")
	assert.False(t, conn.IsConnected())
}

func TestTuningFailureSuppressed(t *testing.T) {
	ft := newFakeTransport()
	ft.failures[TuningCommands[0]] = errors.New("broken pipe")
	conn := New(mustOptions(t, nil), WithTransport(ft))

	require.NoError(t, conn.Connect(context.Background()))
	assert.True(t, conn.IsConnected())
	assert.Equal(t, 1, ft.count(TuningCommands[1]))
}

func TestConnectIdempotent(t *testing.T) {
	ft := newFakeTransport()
	conn := New(mustOptions(t, nil), WithTransport(ft))
	require.NoError(t, conn.Connect(context.Background()))
	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, 1, ft.count(ProbeCommand))

	require.NoError(t, conn.Close())
	assert.False(t, conn.IsConnected())
	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, 2, ft.count(ProbeCommand))
}

func TestFileTransferUnsupported(t *testing.T) {
	conn := New(mustOptions(t, map[string]any{"simulated": true}))

	err := conn.Upload(context.Background(), strings.NewReader("x"), "/var/tmp/x", 0o644)
	assert.ErrorIs(t, err, ErrFileTransferNotSupported)
	assert.Contains(t, err.Error(), "use command execution")

	err = conn.Download(context.Background(), "/var/log/messages", &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrFileTransferNotSupported)
}

func TestConnectionString(t *testing.T) {
	conn := New(mustOptions(t, map[string]any{"port": 830}))
	assert.Equal(t, "juniper://admin@10.0.0.1:830", conn.String())
}

func TestVirtualFiles(t *testing.T) {
	conn := New(mustOptions(t, map[string]any{"simulated": true}))

	f, err := conn.File("/config/system")
	require.NoError(t, err)
	assert.Equal(t, "show configuration system", f.Command)
	content, err := f.Content(context.Background())
	require.NoError(t, err)
	assert.Contains(t, content, "host-name vsrx01")

	f, err = conn.File("/operational/chassis")
	require.NoError(t, err)
	assert.Equal(t, "show chassis hardware", f.Command)

	f, err = conn.File("/config/protocols/bgp")
	require.NoError(t, err)
	assert.Equal(t, "show configuration protocols bgp", f.Command)

	_, err = conn.File("/operational/unknown")
	assert.Error(t, err)

	_, err = conn.File("/etc/passwd")
	assert.Error(t, err)
}
