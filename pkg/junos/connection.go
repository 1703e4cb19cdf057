// Package junos 通过交互式 SSH 会话连接 Juniper 设备，实现 connector.Connector
package junos

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sshcollectorpro/junosconnect/pkg/connector"
	"github.com/sshcollectorpro/junosconnect/pkg/logger"
	"github.com/sshcollectorpro/junosconnect/pkg/ssh"
	"github.com/sshcollectorpro/junosconnect/simulate"
)

const (
	// ProbeCommand 建连后确认 CLI 可交互
	ProbeCommand = "show cli"
)

// TuningCommands 关闭分页与折行，失败只记录日志
var TuningCommands = []string{
	"set cli screen-length 0",
	"set cli screen-width 0",
}

// Transport 承载命令的底层会话
type Transport interface {
	Connect(ctx context.Context) error
	Run(ctx context.Context, command string) (string, error)
	IsConnected() bool
	Close() error
}

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// Connection 单台 Juniper 设备的连接器
// 同一实例不支持并发调用
type Connection struct {
	opts      *Options
	env       ssh.Environment
	transport Transport
	injected  bool
	fixtures  *simulate.Table
	state     connState
	facts     factDetector
	log       *logrus.Entry
}

var _ connector.Connector = (*Connection)(nil)

// Option 配置连接器
type Option func(*Connection)

// WithTransport 使用给定的会话实现，主要用于测试
func WithTransport(t Transport) Option {
	return func(c *Connection) {
		c.transport = t
		c.injected = true
	}
}

// WithFixtures 模拟模式下使用的应答表
func WithFixtures(t *simulate.Table) Option {
	return func(c *Connection) {
		c.fixtures = t
	}
}

// WithEnvironment 覆盖代理方案决策使用的宿主环境
func WithEnvironment(env ssh.Environment) Option {
	return func(c *Connection) {
		c.env = env
	}
}

// New 以已校验的参数创建连接器，不发起连接
func New(opts *Options, options ...Option) *Connection {
	c := &Connection{
		opts: opts,
		env:  ssh.DefaultEnvironment(),
		log:  logger.ForHost(opts.Host),
	}
	for _, o := range options {
		o(c)
	}
	if c.opts.Simulated && c.fixtures == nil {
		c.fixtures = simulate.DefaultTable()
	}
	return c
}

// NewFromMap 校验扁平参数后创建连接器
func NewFromMap(raw map[string]any, options ...Option) (*Connection, error) {
	opts, err := ParseOptions(raw)
	if err != nil {
		return nil, err
	}
	return New(opts, options...), nil
}

// Options 连接参数
func (c *Connection) Options() *Options { return c.opts }

// ProxyJump 跳板机描述，未使用跳板机时为空
func (c *Connection) ProxyJump() string { return c.opts.ProxyJump() }

// ProxyPlan 按当前环境得到的代理方案
func (c *Connection) ProxyPlan() ssh.ProxyPlan {
	return ssh.DecideProxy(c.opts.proxyConfig(), c.env)
}

// Connect 建立会话、确认可交互并关闭分页；已连接时直接返回
func (c *Connection) Connect(ctx context.Context) error {
	if c.opts.Simulated {
		c.state = stateConnected
		return nil
	}
	if c.state == stateConnected && c.transport != nil && c.transport.IsConnected() {
		return nil
	}

	c.state = stateConnecting
	t := c.transport
	if !c.injected {
		if t != nil {
			_ = t.Close()
		}
		t = c.newTransport()
	}

	start := time.Now()
	if err := t.Connect(ctx); err != nil {
		return c.connectFailed(t, err)
	}
	if _, err := t.Run(ctx, ProbeCommand); err != nil {
		return c.connectFailed(t, fmt.Errorf("session probe failed: %w", err))
	}
	c.transport = t
	c.state = stateConnected
	c.log.Infof("connected in %s", time.Since(start).Round(time.Millisecond))

	c.tune(ctx)
	return nil
}

func (c *Connection) connectFailed(t Transport, err error) error {
	_ = t.Close()
	c.state = stateDisconnected
	if !c.injected {
		c.transport = nil
	}
	c.log.Warnf("connect failed: %v", err)
	return &TransportError{
		Host:    c.opts.Host,
		Message: ConnectionErrorMessage(c.opts.Host, c.opts, err),
		Err:     err,
	}
}

func (c *Connection) tune(ctx context.Context) {
	for _, cmd := range TuningCommands {
		out, err := c.transport.Run(ctx, cmd)
		if err != nil {
			c.log.Warnf("%q failed: %v", cmd, err)
			continue
		}
		if IsError(out) {
			c.log.Warnf("%q rejected by device: %s", cmd, CleanOutput(out, cmd))
		}
	}
}

func (c *Connection) newTransport() Transport {
	return ssh.NewClient(&ssh.Config{
		Host: c.opts.Host,
		Port: c.opts.Port,
		User: c.opts.User,
		Credentials: ssh.Credentials{
			Password: c.opts.Password,
			KeyFiles: c.opts.KeyFiles,
			KeysOnly: c.opts.KeysOnly,
		},
		Timeout:           c.opts.Timeout,
		KeepAlive:         c.opts.KeepAlive,
		KeepAliveInterval: c.opts.KeepAliveInterval,
		KnownHostsFile:    c.opts.KnownHostsFile,
		Proxy:             c.ProxyPlan(),
	})
}

// IsConnected 会话存在且可用；模拟模式恒为 true
func (c *Connection) IsConnected() bool {
	if c.opts.Simulated {
		return true
	}
	return c.state == stateConnected && c.transport != nil && c.transport.IsConnected()
}

// Ping 检查底层连接是否仍然可用
func (c *Connection) Ping() error {
	if c.opts.Simulated {
		return nil
	}
	if !c.IsConnected() {
		return fmt.Errorf("not connected to %s", c.opts.Host)
	}
	if a, ok := c.transport.(interface{ Alive() error }); ok {
		return a.Alive()
	}
	return nil
}

// Execute 执行一条 CLI 命令
// 命令被拒绝或自动建连失败时返回错误；设备报错与收发异常体现为 ExitCode 1
func (c *Connection) Execute(ctx context.Context, cmd string) (*connector.Result, error) {
	command, err := SanitizeCommand(cmd)
	if err != nil {
		return nil, err
	}

	if c.opts.Simulated {
		resp := c.fixtures.Lookup(command)
		if resp.ExitCode != 0 {
			return &connector.Result{Stderr: resp.Output, ExitCode: resp.ExitCode}, nil
		}
		return resultFor(command, resp.Output), nil
	}

	if !c.IsConnected() {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	out, err := c.transport.Run(ctx, command)
	if err != nil {
		c.log.Warnf("command %q failed: %v", command, err)
		if !c.transport.IsConnected() {
			// 下一次 Execute 重新建连
			c.state = stateDisconnected
		}
		return &connector.Result{Stderr: err.Error(), ExitCode: 1}, nil
	}
	logger.DebugCommandOutput(c.opts.Host, command, out, 5)
	return resultFor(command, out), nil
}

// resultFor 去掉回显后再判定设备报错，命令本身含错误关键字时不误判
func resultFor(command, out string) *connector.Result {
	cleaned := CleanOutput(out, command)
	if IsError(cleaned) {
		return &connector.Result{Stderr: out, ExitCode: 1}
	}
	return &connector.Result{Stdout: cleaned, ExitCode: 0}
}

// Facts 版本与架构，首次调用时执行一次 show version 并缓存
func (c *Connection) Facts(ctx context.Context) Facts {
	enabled := c.IsConnected() && c.opts.DetectFacts
	return c.facts.detect(ctx, enabled, func(ctx context.Context, cmd string) (string, bool) {
		res, err := c.Execute(ctx, cmd)
		if err != nil || !res.Success() {
			return "", false
		}
		return res.Stdout, true
	})
}

// VersionOutput 缓存的 show version 原始输出
func (c *Connection) VersionOutput() string { return c.facts.raw }

// Upload Junos 连接不支持文件传输
func (c *Connection) Upload(ctx context.Context, src io.Reader, dst string, mode uint32) error {
	return fmt.Errorf("upload %s: %w", dst, ErrFileTransferNotSupported)
}

// Download Junos 连接不支持文件传输
func (c *Connection) Download(ctx context.Context, src string, dst io.Writer) error {
	return fmt.Errorf("download %s: %w", src, ErrFileTransferNotSupported)
}

// Close 关闭会话
func (c *Connection) Close() error {
	c.state = stateDisconnected
	if c.transport == nil {
		return nil
	}
	err := c.transport.Close()
	if !c.injected {
		c.transport = nil
	}
	return err
}

// String 形如 juniper://admin@10.0.0.1:22
func (c *Connection) String() string {
	return fmt.Sprintf("juniper://%s@%s", c.opts.User, net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port)))
}
