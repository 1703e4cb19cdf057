package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/sshcollectorpro/junosconnect/internal/util"
	"golang.org/x/crypto/ssh"
)

const promptSuffixes = ">#%$"

var (
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]|\x1b[()][A-Z0-9]`)
	// 首次识别提示符：user@host> / host# / root@host:RE:0%
	genericPrompt = regexp.MustCompile(`^(?:[\w.\-]+@)?[\w.\-:]+[>#%$]\s?$`)
	pagerPattern  = regexp.MustCompile(`(?i)-+\s*\(?more(?: \d+%)?\)?\s*-+\s*$`)
	// 翻页后设备以 \r + 空格 + \r 擦除分页提示
	eraseLine = regexp.MustCompile(`\r +\r`)
)

// Shell 交互式 PTY 会话，命令按提示符分界
type Shell struct {
	session *ssh.Session
	stdin   io.WriteCloser
	chunks  chan []byte
	readErr error
	prompt  string
	// broken 命令未在提示符处结束，后续输出可能错位
	broken error
}

// openShell 申请 PTY 并等待首个提示符
func openShell(ctx context.Context, client *ssh.Client, timeout time.Duration) (*Shell, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 38400,
		ssh.TTY_OP_OSPEED: 38400,
	}
	if err := session.RequestPty("vt100", 24, 511, modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to request pty: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdout: %w", err)
	}
	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	s := &Shell{
		session: session,
		stdin:   stdin,
		chunks:  make(chan []byte, 64),
	}
	go s.readLoop(stdout)

	banner, err := s.readUntilPrompt(ctx, timeout, true)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("no prompt received: %w", err)
	}
	s.prompt = promptPrefix(banner)
	return s, nil
}

// Prompt 识别到的提示符前缀，如 admin@vsrx01
func (s *Shell) Prompt() string { return s.prompt }

// Run 发送一行命令，返回下一个提示符之前的输出（含回显，不含提示符行）
// 超时或取消后会话不再可用，需要重新连接
func (s *Shell) Run(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if s.broken != nil {
		return "", fmt.Errorf("session out of sync after previous command: %w", s.broken)
	}
	s.drain()
	if _, err := io.WriteString(s.stdin, command+"\n"); err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}
	out, err := s.readUntilPrompt(ctx, timeout, false)
	if err != nil {
		s.broken = err
		return out, err
	}
	return dropLastLine(out), nil
}

// Usable 会话仍在提示符处同步
func (s *Shell) Usable() bool { return s.broken == nil }

// Close 退出 CLI 并关闭会话
func (s *Shell) Close() error {
	_, _ = io.WriteString(s.stdin, "exit\n")
	_ = s.stdin.Close()
	err := s.session.Close()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Shell) readLoop(r io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			b := make([]byte, n)
			copy(b, buf[:n])
			s.chunks <- b
		}
		if err != nil {
			s.readErr = err
			close(s.chunks)
			return
		}
	}
}

// drain 丢弃上一条命令之后到达的残留输出
func (s *Shell) drain() {
	for {
		select {
		case _, ok := <-s.chunks:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// readUntilPrompt 读取到最后一行为提示符为止
// induce 为 true 时若 1 秒内无提示符则发送空行诱导
func (s *Shell) readUntilPrompt(ctx context.Context, timeout time.Duration, induce bool) (string, error) {
	var raw bytes.Buffer
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var inducer <-chan time.Time
	if induce {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		inducer = ticker.C
	}
	induced := 0

	for {
		select {
		case <-ctx.Done():
			return normalizeOutput(raw.Bytes()), ctx.Err()
		case <-timer.C:
			return normalizeOutput(raw.Bytes()), fmt.Errorf("timed out after %s waiting for prompt", timeout)
		case <-inducer:
			if induced < 3 {
				induced++
				_, _ = io.WriteString(s.stdin, "\n")
			}
		case b, ok := <-s.chunks:
			if !ok {
				err := s.readErr
				if err == nil || errors.Is(err, io.EOF) {
					err = errors.New("session closed by remote host")
				}
				return normalizeOutput(raw.Bytes()), err
			}
			raw.Write(b)
			text := normalizeOutput(raw.Bytes())
			tail := lastLine(text)
			if pagerPattern.MatchString(tail) {
				// 分页未能关闭时自动翻页，并去掉分页提示
				if i := bytes.LastIndexByte(raw.Bytes(), '\n'); i >= 0 {
					raw.Truncate(i + 1)
				} else {
					raw.Reset()
				}
				_, _ = io.WriteString(s.stdin, " ")
				continue
			}
			if s.matchPrompt(tail) {
				return text, nil
			}
		}
	}
}

func (s *Shell) matchPrompt(line string) bool {
	line = strings.TrimRight(line, " ")
	if line == "" {
		return false
	}
	if s.prompt == "" {
		return genericPrompt.MatchString(line)
	}
	return len(line) == len(s.prompt)+1 &&
		strings.HasPrefix(line, s.prompt) &&
		strings.IndexByte(promptSuffixes, line[len(line)-1]) >= 0
}

// normalizeOutput 转 UTF-8、去 ANSI 控制序列、统一换行
func normalizeOutput(b []byte) string {
	text := util.EnsureUTF8Bytes(b)
	text = ansiPattern.ReplaceAllString(text, "")
	text = eraseLine.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "")
}

func lastLine(text string) string {
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		return text[i+1:]
	}
	return text
}

func dropLastLine(text string) string {
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		return text[:i+1]
	}
	return ""
}

// promptPrefix 从提示符行提取前缀，去掉结尾的 > # % $
func promptPrefix(text string) string {
	line := strings.TrimRight(lastLine(text), " ")
	if line == "" {
		return ""
	}
	return line[:len(line)-1]
}
