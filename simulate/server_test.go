package simulate

import (
	"bufio"
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func startServer(t *testing.T, cfg ServerConfig, table *Table) *Server {
	t.Helper()
	srv, err := NewServer(cfg, table)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func dial(t *testing.T, srv *Server, user, password string) *ssh.Client {
	t.Helper()
	client, err := ssh.Dial("tcp", srv.Addr(), &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestServerExec(t *testing.T) {
	srv := startServer(t, ServerConfig{Users: map[string]string{"admin": "secret"}}, nil)
	client := dial(t, srv, "admin", "secret")

	session, err := client.NewSession()
	require.NoError(t, err)
	out, err := session.Output("show version")
	require.NoError(t, err)
	assert.Contains(t, string(out), "Junos: 12.1X47-D15.4\r\n")

	session, err = client.NewSession()
	require.NoError(t, err)
	_, err = session.Output("bogus")
	var exitErr *ssh.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitStatus())
}

func TestServerRejectsBadPassword(t *testing.T) {
	srv := startServer(t, ServerConfig{Users: map[string]string{"admin": "secret"}}, nil)
	_, err := ssh.Dial("tcp", srv.Addr(), &ssh.ClientConfig{
		User:            "admin",
		Auth:            []ssh.AuthMethod{ssh.Password("nope")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	assert.Error(t, err)
}

func TestServerSetTable(t *testing.T) {
	srv := startServer(t, ServerConfig{Users: map[string]string{"admin": "secret"}}, nil)
	srv.SetTable(NewTable(Fixture{Match: "show version", Output: "Junos: 23.4R1.10"}))
	srv.SetTable(nil)

	client := dial(t, srv, "admin", "secret")
	session, err := client.NewSession()
	require.NoError(t, err)
	out, err := session.Output("show version")
	require.NoError(t, err)
	assert.Equal(t, "Junos: 23.4R1.10\r\n", string(out), "热替换后使用新表，nil 被忽略")
}

func TestServerForwardingDisabled(t *testing.T) {
	srv := startServer(t, ServerConfig{Users: map[string]string{"admin": "secret"}}, nil)
	client := dial(t, srv, "admin", "secret")

	_, err := client.Dial("tcp", srv.Addr())
	assert.Error(t, err, "未开启转发时拒绝 direct-tcpip")
}

func TestServerForwarding(t *testing.T) {
	target, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer target.Close()
	go func() {
		c, err := target.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		_, _ = c.Write([]byte("hello from target"))
	}()

	srv := startServer(t, ServerConfig{Users: map[string]string{"admin": "secret"}, AllowForwarding: true}, nil)
	client := dial(t, srv, "admin", "secret")

	conn, err := client.Dial("tcp", target.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello from target", string(buf[:n]))
}

func TestServerShellPrompt(t *testing.T) {
	srv := startServer(t, ServerConfig{Hostname: "mx01", Users: map[string]string{"lab": "lab"}}, nil)
	client := dial(t, srv, "lab", "lab")

	session, err := client.NewSession()
	require.NoError(t, err)
	var out bytes.Buffer
	session.Stdout = &out
	stdin, err := session.StdinPipe()
	require.NoError(t, err)
	require.NoError(t, session.Shell())

	_, _ = stdin.Write([]byte("configure\nexit\nexit\n"))
	_ = session.Wait()

	text := out.String()
	assert.Contains(t, text, "--- JUNOS 12.1X47-D15.4")
	assert.Contains(t, text, "lab@mx01> ")
	assert.Contains(t, text, "lab@mx01# ", "configure 进入配置模式")
	assert.Contains(t, text, "Exiting configuration mode")
}

func TestServerPersistentHostKey(t *testing.T) {
	path := t.TempDir() + "/keys/host_rsa"
	first, err := hostKey(path)
	require.NoError(t, err)
	second, err := hostKey(path)
	require.NoError(t, err)
	assert.Equal(t, first.PublicKey().Marshal(), second.PublicKey().Marshal(), "重启后主机密钥不变")
}

func TestEnsureCRLF(t *testing.T) {
	assert.Equal(t, "a\r\nb\r\n", ensureCRLF("a\nb\n\n"))
	assert.Equal(t, "a\r\nb\r\n", ensureCRLF("a\r\nb"))
	assert.Equal(t, "", ensureCRLF("\n"))
}

func TestServerStopClosesOpenConnections(t *testing.T) {
	srv := startServer(t, ServerConfig{Users: map[string]string{"admin": "secret"}}, nil)
	client := dial(t, srv, "admin", "secret")
	session, err := client.NewSession()
	require.NoError(t, err)
	require.NoError(t, session.Shell())

	done := make(chan struct{})
	go func() {
		srv.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("客户端未断开时 Stop 不应阻塞")
	}

	_, _, err = client.SendRequest("keepalive@openssh.com", true, nil)
	assert.Error(t, err, "Stop 后已建立的连接被关闭")
	_, err = net.DialTimeout("tcp", srv.Addr(), time.Second)
	assert.Error(t, err, "Stop 后不再接受新连接")
}

func TestServerMaxConn(t *testing.T) {
	srv := startServer(t, ServerConfig{Users: map[string]string{"admin": "secret"}, MaxConn: 1}, nil)
	dial(t, srv, "admin", "secret")

	_, err := ssh.Dial("tcp", srv.Addr(), &ssh.ClientConfig{
		User:            "admin",
		Auth:            []ssh.AuthMethod{ssh.Password("secret")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
	assert.Error(t, err, "超过 max_conn 的连接被拒绝")
}

func TestWritePaged(t *testing.T) {
	text := "a\r\nb\r\nc\r\nd\r\ne\r\n"
	erase := "\r" + strings.Repeat(" ", len("---(more 40%)---")) + "\r"

	var out bytes.Buffer
	ok := writePaged(&out, bufio.NewReader(strings.NewReader(" \n")), text, 2)
	assert.True(t, ok)
	assert.Equal(t,
		"a\r\nb\r\n---(more 40%)---"+erase+"c\r\nd\r\n---(more 80%)---"+erase+"e\r\n",
		out.String(), "空格翻一页，回车前进一行")

	out.Reset()
	ok = writePaged(&out, bufio.NewReader(strings.NewReader("q")), text, 2)
	assert.True(t, ok)
	assert.Equal(t, "a\r\nb\r\n---(more 40%)---"+erase, out.String(), "q 结束输出")

	out.Reset()
	ok = writePaged(&out, bufio.NewReader(strings.NewReader("")), text, 2)
	assert.False(t, ok, "等待按键时连接断开")

	out.Reset()
	assert.True(t, writePaged(&out, bufio.NewReader(strings.NewReader("")), text, 0))
	assert.Equal(t, text, out.String(), "未开启分页时原样输出")
}

func TestScreenLength(t *testing.T) {
	n, ok := screenLength("set cli screen-length 0")
	assert.True(t, ok)
	assert.Equal(t, 0, n)

	n, ok = screenLength("SET CLI SCREEN-LENGTH 40")
	assert.True(t, ok)
	assert.Equal(t, 40, n)

	for _, cmd := range []string{"set cli screen-width 0", "set cli screen-length", "set cli screen-length abc", "set cli screen-length -1"} {
		_, ok := screenLength(cmd)
		assert.False(t, ok, cmd)
	}
}
