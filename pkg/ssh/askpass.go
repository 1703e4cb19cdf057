package ssh

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
)

// AskpassHelper 为代理命令进程提供密码的临时脚本
// 仅通过子进程环境暴露，握手结束后调用 Cleanup 删除
type AskpassHelper struct {
	path string
	once sync.Once
}

// NewAskpassHelper 写入只有当前用户可执行的 askpass 脚本
func NewAskpassHelper(password string) (*AskpassHelper, error) {
	pattern, body := "junos-askpass-*.sh", unixAskpassScript(password)
	if runtime.GOOS == "windows" {
		pattern, body = "junos-askpass-*.bat", windowsAskpassScript(password)
	}

	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create askpass helper: %w", err)
	}
	h := &AskpassHelper{path: f.Name()}
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		h.Cleanup()
		return nil, fmt.Errorf("failed to write askpass helper: %w", err)
	}
	if err := f.Close(); err != nil {
		h.Cleanup()
		return nil, fmt.Errorf("failed to write askpass helper: %w", err)
	}
	if err := os.Chmod(h.path, 0700); err != nil {
		h.Cleanup()
		return nil, fmt.Errorf("failed to chmod askpass helper: %w", err)
	}
	return h, nil
}

// Path 脚本路径
func (h *AskpassHelper) Path() string { return h.path }

// Env 追加到代理进程环境的变量
func (h *AskpassHelper) Env() []string {
	env := []string{
		"SSH_ASKPASS=" + h.path,
		"SSH_ASKPASS_REQUIRE=force",
	}
	if os.Getenv("DISPLAY") == "" {
		// 老版本 OpenSSH 只有在 DISPLAY 存在时才会调用 askpass
		env = append(env, "DISPLAY=:0")
	}
	return env
}

// Cleanup 删除脚本，可重复调用
func (h *AskpassHelper) Cleanup() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		_ = os.Remove(h.path)
	})
}

func unixAskpassScript(password string) string {
	return "#!/bin/sh\nprintf '%s\\n' " + shellQuote(password) + "\n"
}

func windowsAskpassScript(password string) string {
	r := strings.NewReplacer("^", "^^", "&", "^&", "|", "^|", "<", "^<", ">", "^>", "%", "%%")
	return "@echo off\r\necho " + r.Replace(password) + "\r\n"
}

// shellQuote 单引号包裹，内部单引号转义
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
