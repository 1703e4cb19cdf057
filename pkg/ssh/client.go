package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sshcollectorpro/junosconnect/pkg/logger"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config 单台设备的 SSH 连接参数
type Config struct {
	Host string
	Port int
	User string
	Credentials

	// Timeout 同时约束建连与单条命令
	Timeout           time.Duration
	KeepAlive         bool
	KeepAliveInterval time.Duration
	// KnownHostsFile 非空时校验主机密钥
	KnownHostsFile string

	Proxy ProxyPlan
}

// Client 持有一个 SSH 连接及其上的交互式 shell
type Client struct {
	config  *Config
	conn    *ssh.Client
	bastion *ssh.Client
	shell   *Shell
	release func()
	log     *logrus.Entry
}

// NewClient 创建SSH客户端
func NewClient(config *Config) *Client {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	return &Client{
		config: config,
		log:    logger.ForHost(config.Host),
	}
}

// Connect 连接SSH服务器并打开交互式 shell
// 已失步的会话先关闭再重建
func (c *Client) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}
	if c.conn != nil {
		_ = c.Close()
	}
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	auths, release, err := authMethods(c.config.Credentials)
	if err != nil {
		return err
	}
	hostKeys, err := c.hostKeyCallback()
	if err != nil {
		release()
		return err
	}
	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
	sshConfig := c.clientConfig(c.config.User, auths, hostKeys)

	c.log.Debugf("connecting to %s (%s)", addr, c.config.Proxy.Describe())
	netConn, cleanup, err := c.dial(ctx, addr)
	if err != nil {
		release()
		c.closeBastion()
		return err
	}

	sshConn, chans, reqs, err := handshake(ctx, netConn, addr, sshConfig)
	cleanup()
	if err != nil {
		netConn.Close()
		release()
		c.closeBastion()
		if cc, ok := netConn.(*commandConn); ok && cc.Stderr() != "" {
			return fmt.Errorf("proxy command failed: %s: %w", cc.Stderr(), err)
		}
		return fmt.Errorf("failed to create SSH connection: %w", err)
	}
	c.conn = ssh.NewClient(sshConn, chans, reqs)
	c.release = release

	shell, err := openShell(ctx, c.conn, c.config.Timeout)
	if err != nil {
		c.Close()
		return err
	}
	c.shell = shell
	c.log.Debugf("session established, prompt %q", shell.Prompt())
	return nil
}

// Run 在交互式 shell 中执行一条命令
func (c *Client) Run(ctx context.Context, command string) (string, error) {
	if c.shell == nil {
		return "", errors.New("SSH session not established")
	}
	return c.shell.Run(ctx, command, c.config.Timeout)
}

// Alive 发送 keepalive 请求检查连接
func (c *Client) Alive() error {
	if c.conn == nil {
		return errors.New("SSH connection not established")
	}
	_, _, err := c.conn.SendRequest("keepalive@openssh.com", false, nil)
	return err
}

// IsConnected 会话存在且未因超时失步
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.shell != nil && c.shell.Usable()
}

// Close 关闭 shell、连接与跳板机连接
func (c *Client) Close() error {
	var errs []error
	if c.shell != nil {
		if err := c.shell.Close(); err != nil {
			errs = append(errs, err)
		}
		c.shell = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		c.conn = nil
	}
	c.closeBastion()
	if c.release != nil {
		c.release()
		c.release = nil
	}
	return errors.Join(errs...)
}

func (c *Client) closeBastion() {
	if c.bastion != nil {
		c.bastion.Close()
		c.bastion = nil
	}
}

// dial 按代理方案建立到目标的底层连接
// 返回的 cleanup 在握手结束后调用，释放只在握手期间需要的资源
func (c *Client) dial(ctx context.Context, addr string) (net.Conn, func(), error) {
	noop := func() {}
	plan := c.config.Proxy
	// 代理进程的生命周期跟随连接而不是本次调用
	procCtx := context.WithoutCancel(ctx)

	switch plan.Kind {
	case ProxyNone:
		conn, err := c.netDialer().DialContext(ctx, "tcp", addr)
		return conn, noop, err

	case ProxyNativeJump:
		conn, err := c.dialJump(ctx, plan.Jump, addr)
		return conn, noop, err

	case ProxyPasswordRelay:
		args := plan.RelayArgs(c.config.Host, c.config.Port)
		conn, err := dialCommand(procCtx, append([]string{plan.RelayPath}, args...), nil)
		if err != nil {
			return nil, noop, err
		}
		return conn, noop, nil

	case ProxyCommand:
		var env []string
		cleanup := noop
		if plan.AskpassPassword != "" {
			helper, err := NewAskpassHelper(plan.AskpassPassword)
			if err != nil {
				return nil, noop, err
			}
			env = helper.Env()
			cleanup = helper.Cleanup
		}
		command := ExpandProxyCommand(plan.Command, c.config.Host, c.config.Port, c.config.User)
		conn, err := dialCommand(procCtx, shellArgv(command), env)
		if err != nil {
			cleanup()
			return nil, noop, err
		}
		return conn, cleanup, nil

	default:
		return nil, noop, fmt.Errorf("unknown proxy plan %d", plan.Kind)
	}
}

// dialJump 先登录跳板机，再经 direct-tcpip 通道连到目标
func (c *Client) dialJump(ctx context.Context, hop JumpHop, addr string) (net.Conn, error) {
	creds := c.config.Credentials
	creds.Password = hop.Password
	creds.KeysOnly = false
	auths, release, err := authMethods(creds)
	if err != nil {
		return nil, fmt.Errorf("bastion %s: %w", hop, err)
	}
	defer release()

	raw, err := c.netDialer().DialContext(ctx, "tcp", hop.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to dial bastion %s: %w", hop, err)
	}
	sshConn, chans, reqs, err := handshake(ctx, raw, hop.Addr(), c.clientConfig(hop.User, auths, ssh.InsecureIgnoreHostKey()))
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("bastion %s: %w", hop, err)
	}
	c.bastion = ssh.NewClient(sshConn, chans, reqs)

	conn, err := c.bastion.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bastion %s cannot reach %s: %w", hop, addr, err)
	}
	return conn, nil
}

func (c *Client) netDialer() *net.Dialer {
	d := &net.Dialer{Timeout: c.config.Timeout, KeepAlive: -1}
	if c.config.KeepAlive {
		d.KeepAlive = c.config.KeepAliveInterval
	}
	return d
}

func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.config.KnownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(expandHome(c.config.KnownHostsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return cb, nil
}

// clientConfig 兼容老设备的算法集合
func (c *Client) clientConfig(user string, auths []ssh.AuthMethod, hostKeys ssh.HostKeyCallback) *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: hostKeys,
		Timeout:         c.config.Timeout,
		Config: ssh.Config{
			KeyExchanges: []string{
				"curve25519-sha256",
				"curve25519-sha256@libssh.org",
				"ecdh-sha2-nistp256",
				"ecdh-sha2-nistp384",
				"ecdh-sha2-nistp521",
				"diffie-hellman-group14-sha256",
				"diffie-hellman-group14-sha1",
				"diffie-hellman-group-exchange-sha256",
				"diffie-hellman-group-exchange-sha1",
				"diffie-hellman-group1-sha1",
			},
			Ciphers: []string{
				"aes128-gcm@openssh.com",
				"aes256-gcm@openssh.com",
				"chacha20-poly1305@openssh.com",
				"aes128-ctr",
				"aes192-ctr",
				"aes256-ctr",
				"aes128-cbc",
				"3des-cbc",
			},
			MACs: []string{
				"hmac-sha2-256-etm@openssh.com",
				"hmac-sha2-512-etm@openssh.com",
				"hmac-sha2-256",
				"hmac-sha2-512",
				"hmac-sha1",
				"hmac-sha1-96",
			},
		},
		HostKeyAlgorithms: []string{
			"ssh-ed25519",
			"ecdsa-sha2-nistp256",
			"ecdsa-sha2-nistp384",
			"ecdsa-sha2-nistp521",
			"rsa-sha2-512",
			"rsa-sha2-256",
			"ssh-rsa",
		},
	}
}

type handshakeResult struct {
	conn  ssh.Conn
	chans <-chan ssh.NewChannel
	reqs  <-chan *ssh.Request
	err   error
}

// handshake 在 ctx 结束前完成 SSH 握手，超时关闭底层连接
// 代理进程与跳板通道不支持读写截止时间，因此不依赖 SetDeadline
func handshake(ctx context.Context, conn net.Conn, addr string, cfg *ssh.ClientConfig) (ssh.Conn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {
	done := make(chan handshakeResult, 1)
	go func() {
		c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
		done <- handshakeResult{c, chans, reqs, err}
	}()

	select {
	case r := <-done:
		return r.conn, r.chans, r.reqs, r.err
	case <-ctx.Done():
		conn.Close()
		<-done
		return nil, nil, nil, fmt.Errorf("handshake with %s: %w", addr, ctx.Err())
	}
}
