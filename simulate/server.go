package simulate

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sshcollectorpro/junosconnect/pkg/logger"
	"golang.org/x/crypto/ssh"
)

// ServerConfig 模拟设备 SSH 服务配置
type ServerConfig struct {
	// Addr 监听地址，端口为 0 时随机分配
	Addr     string
	Hostname string
	// Users 用户名到密码
	Users          map[string]string
	AuthorizedKeys []ssh.PublicKey
	// HostKeyPath 非空时持久化 RSA 主机密钥，否则每次启动生成临时 ed25519 密钥
	HostKeyPath string
	IdleTimeout time.Duration
	MaxConn     int
	// AllowForwarding 接受 direct-tcpip 通道，使其可充当跳板机
	AllowForwarding bool
	// PageLines 大于 0 时 shell 输出按页显示 ---(more)---，set cli screen-length 可在会话内修改
	PageLines int
}

// Server 以 Junos CLI 风格应答的 SSH 服务
type Server struct {
	cfg      ServerConfig
	table    atomic.Pointer[Table]
	hostKey  ssh.Signer
	listener net.Listener
	conns    map[net.Conn]struct{}
	stopping bool
	mu       sync.Mutex
	wg       sync.WaitGroup
	log      *logrus.Entry
}

// NewServer 创建模拟服务，table 为空时使用内置应答
func NewServer(cfg ServerConfig, table *Table) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.Hostname == "" {
		cfg.Hostname = "vsrx01"
	}
	if table == nil {
		table = DefaultTable()
	}
	signer, err := hostKey(cfg.HostKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init host key: %w", err)
	}
	s := &Server{
		cfg:     cfg,
		hostKey: signer,
		conns:   make(map[net.Conn]struct{}),
		log:     logger.WithFields(logrus.Fields{"component": "simulate", "hostname": cfg.Hostname}),
	}
	s.table.Store(table)
	return s, nil
}

// Table 当前应答表
func (s *Server) Table() *Table { return s.table.Load() }

// SetTable 整体替换应答表，用于热加载
func (s *Server) SetTable(t *Table) {
	if t != nil {
		s.table.Store(t)
	}
}

// Start 开始监听
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.log.Infof("simulated device listening on %s", ln.Addr())

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.log.Warnf("accept failed: %v", err)
				time.Sleep(200 * time.Millisecond)
				continue
			}
			if !s.track(conn) {
				_ = conn.Close()
				continue
			}
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.untrack(c)
				s.handleConn(c)
			}(conn)
		}
	}()
	return nil
}

// Addr 实际监听地址
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Port 实际监听端口
func (s *Server) Port() int {
	_, port, err := net.SplitHostPort(s.Addr())
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}

// Stop 关闭监听，断开所有已建立的连接并等待处理结束
func (s *Server) Stop() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	s.stopping = true
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// track 登记新连接，停止中或超过 MaxConn 时拒绝
func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	if s.cfg.MaxConn > 0 && len(s.conns) >= s.cfg.MaxConn {
		s.log.Warnf("rejecting %s, max_conn %d reached", c.RemoteAddr(), s.cfg.MaxConn)
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	_ = c.Close()
}

func (s *Server) serverConfig() *ssh.ServerConfig {
	checkPassword := func(user, password string) bool {
		want, ok := s.cfg.Users[user]
		return ok && want == password
	}
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if checkPassword(meta.User(), string(password)) {
				return nil, nil
			}
			return nil, fmt.Errorf("access denied")
		},
		KeyboardInteractiveCallback: func(meta ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := challenge(meta.User(), "", []string{"Password:"}, []bool{false})
			if err != nil {
				return nil, err
			}
			if len(answers) == 1 && checkPassword(meta.User(), answers[0]) {
				return nil, nil
			}
			return nil, fmt.Errorf("access denied")
		},
	}
	if len(s.cfg.AuthorizedKeys) > 0 {
		cfg.PublicKeyCallback = func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			for _, k := range s.cfg.AuthorizedKeys {
				if string(k.Marshal()) == string(key.Marshal()) {
					return nil, nil
				}
			}
			return nil, fmt.Errorf("unknown public key")
		}
	}
	cfg.AddHostKey(s.hostKey)
	return cfg
}

func (s *Server) handleConn(nc net.Conn) {
	conn, chans, reqs, err := ssh.NewServerConn(nc, s.serverConfig())
	if err != nil {
		s.log.Debugf("handshake with %s failed: %v", nc.RemoteAddr(), err)
		_ = nc.Close()
		return
	}
	defer conn.Close()
	log := s.log.WithField("user", conn.User())
	log.Debugf("login from %s", nc.RemoteAddr())

	go ssh.DiscardRequests(reqs)

	for ch := range chans {
		switch ch.ChannelType() {
		case "session":
			channel, requests, err := ch.Accept()
			if err != nil {
				log.Warnf("channel accept failed: %v", err)
				continue
			}
			go s.handleSession(channel, requests, conn.User())
		case "direct-tcpip":
			if !s.cfg.AllowForwarding {
				_ = ch.Reject(ssh.Prohibited, "port forwarding is disabled")
				continue
			}
			go s.forward(ch, log)
		default:
			_ = ch.Reject(ssh.UnknownChannelType, "unknown channel type")
		}
	}
}

// forward 跳板机模式下转发 direct-tcpip 通道
func (s *Server) forward(ch ssh.NewChannel, log *logrus.Entry) {
	var req struct {
		DestAddr string
		DestPort uint32
		OrigAddr string
		OrigPort uint32
	}
	if err := ssh.Unmarshal(ch.ExtraData(), &req); err != nil {
		_ = ch.Reject(ssh.ConnectionFailed, "malformed direct-tcpip request")
		return
	}
	target := net.JoinHostPort(req.DestAddr, strconv.Itoa(int(req.DestPort)))
	upstream, err := net.DialTimeout("tcp", target, 10*time.Second)
	if err != nil {
		_ = ch.Reject(ssh.ConnectionFailed, err.Error())
		return
	}
	channel, requests, err := ch.Accept()
	if err != nil {
		upstream.Close()
		return
	}
	go ssh.DiscardRequests(requests)
	log.Debugf("forwarding to %s", target)

	var once sync.Once
	closeBoth := func() {
		channel.Close()
		upstream.Close()
	}
	go func() {
		_, _ = io.Copy(upstream, channel)
		once.Do(closeBoth)
	}()
	_, _ = io.Copy(channel, upstream)
	once.Do(closeBoth)
}

func (s *Server) handleSession(channel ssh.Channel, requests <-chan *ssh.Request, user string) {
	defer channel.Close()
	for req := range requests {
		switch req.Type {
		case "pty-req", "env", "window-change":
			_ = req.Reply(true, nil)
		case "shell":
			_ = req.Reply(true, nil)
			s.runShell(channel, user)
			return
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				return
			}
			_ = req.Reply(true, nil)
			resp := s.Table().Lookup(payload.Command)
			time.Sleep(resp.Delay)
			_, _ = channel.Write([]byte(ensureCRLF(resp.Output)))
			status := struct{ Status uint32 }{uint32(resp.ExitCode)}
			_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(&status))
			return
		default:
			_ = req.Reply(false, nil)
		}
	}
}

// runShell Junos 风格交互：回显、应答、提示符，支持 configure 模式
func (s *Server) runShell(channel ssh.Channel, user string) {
	log := s.log.WithField("user", user)
	suffix := ">"
	pageLines := s.cfg.PageLines
	prompt := func() {
		_, _ = fmt.Fprintf(channel, "%s@%s%s ", user, s.cfg.Hostname, suffix)
	}

	var idle *time.Timer
	if s.cfg.IdleTimeout > 0 {
		idle = time.AfterFunc(s.cfg.IdleTimeout, func() {
			_, _ = channel.Write([]byte("\r\nSession closed due to idle timeout.\r\n"))
			_ = channel.Close()
		})
		defer idle.Stop()
	}

	_, _ = fmt.Fprintf(channel, "--- JUNOS %s built 2014-11-12 02:13:59 UTC\r\n\r\n", "12.1X47-D15.4")
	prompt()

	reader := bufio.NewReader(channel)
	for {
		line, err := readLine(reader)
		if err != nil {
			return
		}
		if idle != nil {
			idle.Reset(s.cfg.IdleTimeout)
		}
		cmd := strings.TrimSpace(line)
		_, _ = channel.Write([]byte(line + "\r\n"))
		log.Debugf("input %q", cmd)

		switch {
		case cmd == "":
		case strings.EqualFold(cmd, "exit") || strings.EqualFold(cmd, "quit"):
			if suffix == "#" {
				_, _ = channel.Write([]byte("Exiting configuration mode\r\n\r\n"))
				suffix = ">"
				break
			}
			return
		case strings.EqualFold(cmd, "configure") || strings.EqualFold(cmd, "edit"):
			_, _ = channel.Write([]byte("Entering configuration mode\r\n\r\n[edit]\r\n"))
			suffix = "#"
		default:
			resp := s.Table().Lookup(cmd)
			if n, ok := screenLength(cmd); ok && resp.ExitCode == 0 {
				pageLines = n
			}
			time.Sleep(resp.Delay)
			if !writePaged(channel, reader, ensureCRLF(resp.Output), pageLines) {
				return
			}
			_, _ = channel.Write([]byte("\r\n"))
		}
		prompt()
	}
}

// writePaged 按页输出，每页后显示 ---(more N%)--- 并等待按键
// 空格翻页，回车前进一行，q 结束输出；连接断开时返回 false
func writePaged(w io.Writer, r *bufio.Reader, text string, pageLines int) bool {
	lines := strings.SplitAfter(text, "\r\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if pageLines <= 0 || len(lines) <= pageLines {
		_, _ = io.WriteString(w, text)
		return true
	}

	shown := 0
	step := pageLines
	for shown < len(lines) {
		end := min(shown+step, len(lines))
		_, _ = io.WriteString(w, strings.Join(lines[shown:end], ""))
		shown = end
		if shown == len(lines) {
			return true
		}
		more := fmt.Sprintf("---(more %d%%)---", shown*100/len(lines))
		_, _ = io.WriteString(w, more)
		key, err := r.ReadByte()
		if err != nil {
			return false
		}
		// 按键后用空格覆盖分页提示
		_, _ = io.WriteString(w, "\r"+strings.Repeat(" ", len(more))+"\r")
		switch key {
		case 'q', 'Q':
			return true
		case '\r', '\n':
			step = 1
		default:
			step = pageLines
		}
	}
	return true
}

// screenLength 解析 set cli screen-length N
func screenLength(cmd string) (int, bool) {
	fields := strings.Fields(strings.ToLower(cmd))
	if len(fields) != 4 || fields[0] != "set" || fields[1] != "cli" || fields[2] != "screen-length" {
		return 0, false
	}
	n, err := strconv.Atoi(fields[3])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// readLine 读取一行，CR、LF 与 CRLF 均视为行尾
func readLine(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		c, err := r.ReadByte()
		if err != nil {
			return b.String(), err
		}
		switch c {
		case '\r':
			if next, err := r.Peek(1); err == nil && next[0] == '\n' {
				_, _ = r.ReadByte()
			}
			return b.String(), nil
		case '\n':
			return b.String(), nil
		default:
			b.WriteByte(c)
		}
	}
}

func ensureCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	return strings.ReplaceAll(s, "\n", "\r\n") + "\r\n"
}

func hostKey(path string) (ssh.Signer, error) {
	if path == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return ssh.NewSignerFromKey(priv)
	}
	return loadOrCreateHostKey(path)
}

// loadOrCreateHostKey 读取持久化的 RSA 主机密钥，不存在时生成
func loadOrCreateHostKey(path string) (ssh.Signer, error) {
	if bs, err := os.ReadFile(path); err == nil {
		if signer, err := ssh.ParsePrivateKey(bs); err == nil {
			return signer, nil
		}
		logger.Warnf("host key %s unreadable, regenerating", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write host key: %w", err)
	}
	return ssh.ParsePrivateKey(pemBytes)
}
