package junos

import (
	"context"
	"testing"

	"github.com/sshcollectorpro/junosconnect/pkg/ssh"
	"github.com/sshcollectorpro/junosconnect/simulate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var linuxEnv = ssh.Environment{GOOS: "linux"}

func startDevice(t *testing.T, cfg simulate.ServerConfig) *simulate.Server {
	t.Helper()
	srv, err := simulate.NewServer(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func TestExecuteOverSSH(t *testing.T) {
	srv := startDevice(t, simulate.ServerConfig{Hostname: "vsrx01", Users: map[string]string{"admin": "secret"}})
	conn, err := NewFromMap(map[string]any{
		"host":     "127.0.0.1",
		"port":     srv.Port(),
		"user":     "admin",
		"password": "secret",
		"timeout":  10,
	}, WithEnvironment(linuxEnv))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()

	res, err := conn.Execute(ctx, "show version")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode, res.Stderr)
	assert.Contains(t, res.Stdout, "Junos: 12.1X47-D15.4")
	assert.NotContains(t, res.Stdout, "show version", "回显应被去除")
	assert.NotContains(t, res.Stdout, "admin@vsrx01>", "提示符不应出现在输出中")

	res, err = conn.Execute(ctx, "show interfaces terse | match ge-")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, "ge-0/0/0")

	res, err = conn.Execute(ctx, "totally bogus command")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Stderr, "unknown command")

	f := conn.Facts(ctx)
	assert.Equal(t, "12.1X47-D15.4", f.Version)
	assert.Equal(t, "x86_64", f.Architecture)
	assert.NoError(t, conn.Ping())
}

func TestExecuteOverSSHPagedDevice(t *testing.T) {
	srv := startDevice(t, simulate.ServerConfig{Hostname: "vsrx01", Users: map[string]string{"admin": "secret"}, PageLines: 3})
	table := simulate.DefaultTable()
	table.Set(simulate.Fixture{Match: "show log messages", Output: "Oct 19 10:02:11 vsrx01 sshd[1203]: Accepted password for admin"})
	srv.SetTable(table)

	conn, err := NewFromMap(map[string]any{
		"host":     "127.0.0.1",
		"port":     srv.Port(),
		"user":     "admin",
		"password": "secret",
		"timeout":  10,
	}, WithEnvironment(linuxEnv))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()

	res, err := conn.Execute(ctx, "show chassis hardware")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode, res.Stderr)
	assert.Contains(t, res.Stdout, "Hardware inventory")
	assert.NotContains(t, res.Stdout, "---(more", "输出中不应残留分页提示")

	res, err = conn.Execute(ctx, `show log messages | match "syntax error"`)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode, "命令回显里的错误关键字不算设备报错")
	assert.Contains(t, res.Stdout, "Accepted password for admin")
}

func TestExecuteOverSSHViaBastion(t *testing.T) {
	device := startDevice(t, simulate.ServerConfig{Hostname: "dev1", Users: map[string]string{"admin": "secret"}})
	bastion := startDevice(t, simulate.ServerConfig{
		Hostname:        "jump1",
		Users:           map[string]string{"netops": "jumppw"},
		AllowForwarding: true,
	})

	conn, err := NewFromMap(map[string]any{
		"host":             "127.0.0.1",
		"port":             device.Port(),
		"user":             "admin",
		"password":         "secret",
		"bastion_host":     "127.0.0.1",
		"bastion_port":     bastion.Port(),
		"bastion_user":     "netops",
		"bastion_password": "jumppw",
		"timeout":          10,
	}, WithEnvironment(linuxEnv))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	assert.Equal(t, ssh.ProxyNativeJump, conn.ProxyPlan().Kind)

	res, err := conn.Execute(context.Background(), "show chassis hardware")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode, res.Stderr)
	assert.Contains(t, res.Stdout, "Hardware inventory")
}

func TestBastionAuthFailure(t *testing.T) {
	device := startDevice(t, simulate.ServerConfig{Users: map[string]string{"admin": "secret"}})
	bastion := startDevice(t, simulate.ServerConfig{
		Users:           map[string]string{"netops": "jumppw"},
		AllowForwarding: true,
	})

	conn, err := NewFromMap(map[string]any{
		"host":             "127.0.0.1",
		"port":             device.Port(),
		"user":             "admin",
		"password":         "secret",
		"bastion_host":     "127.0.0.1",
		"bastion_port":     bastion.Port(),
		"bastion_user":     "netops",
		"bastion_password": "wrong",
		"timeout":          10,
	}, WithEnvironment(linuxEnv))
	require.NoError(t, err)

	err = conn.Connect(context.Background())
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Error(), "Possible causes:")
	assert.False(t, conn.IsConnected())
}

func TestDeviceAuthFailure(t *testing.T) {
	device := startDevice(t, simulate.ServerConfig{Users: map[string]string{"admin": "secret"}})
	conn, err := NewFromMap(map[string]any{
		"host":     "127.0.0.1",
		"port":     device.Port(),
		"user":     "admin",
		"password": "nope",
		"timeout":  10,
	}, WithEnvironment(linuxEnv))
	require.NoError(t, err)

	err = conn.Connect(context.Background())
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Error(), "unable to authenticate")
	assert.NotContains(t, terr.Error(), "Possible causes:")
}
