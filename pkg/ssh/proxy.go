package ssh

import (
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// ProxyKind 到达目标设备的路径类型
type ProxyKind int

const (
	// ProxyNone 直连
	ProxyNone ProxyKind = iota
	// ProxyNativeJump 进程内两跳 SSH，经跳板机 direct-tcpip 通道转发
	ProxyNativeJump
	// ProxyPasswordRelay Windows 下借助 plink 携带跳板机密码建立隧道
	ProxyPasswordRelay
	// ProxyCommand 用户提供的代理命令，通过其 stdin/stdout 承载 SSH
	ProxyCommand
)

const (
	// DefaultBastionUser 未指定跳板机用户时使用
	DefaultBastionUser = "root"
	// DefaultPort SSH 默认端口
	DefaultPort = 22

	relayBinary = "plink.exe"
)

func (k ProxyKind) String() string {
	switch k {
	case ProxyNone:
		return "direct"
	case ProxyNativeJump:
		return "jump"
	case ProxyPasswordRelay:
		return "password-relay"
	case ProxyCommand:
		return "proxy-command"
	default:
		return "unknown"
	}
}

// JumpHop 跳板机
type JumpHop struct {
	Host     string
	Port     int
	User     string
	Password string
}

// String 返回 user@host 或 user@host:port（非 22 端口）
func (h JumpHop) String() string {
	if h.Port == 0 || h.Port == DefaultPort {
		return h.User + "@" + h.Host
	}
	return h.User + "@" + h.Host + ":" + strconv.Itoa(h.Port)
}

// Addr 跳板机拨号地址
func (h JumpHop) Addr() string {
	port := h.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(h.Host, strconv.Itoa(port))
}

// ProxyConfig 选择代理方案所需的连接参数
type ProxyConfig struct {
	BastionHost     string
	BastionUser     string
	BastionPort     int
	BastionPassword string
	ProxyCommand    string
}

// Environment 决策依赖的宿主环境，测试时可替换
type Environment struct {
	GOOS     string
	LookPath func(file string) (string, error)
}

// DefaultEnvironment 当前进程的运行环境
func DefaultEnvironment() Environment {
	return Environment{GOOS: runtime.GOOS, LookPath: exec.LookPath}
}

// ProxyPlan 一次连接尝试的代理方案
type ProxyPlan struct {
	Kind ProxyKind
	// Jump 跳板机，NativeJump 与 PasswordRelay 有效
	Jump JumpHop
	// RelayPath 定位到的 plink 可执行文件，PasswordRelay 有效
	RelayPath string
	// Command 原始代理命令模板，支持 %h %p %r %% 占位
	Command string
	// AskpassPassword 非空时为代理命令进程提供 askpass 辅助脚本
	AskpassPassword string
}

// DecideProxy 根据连接参数与宿主环境选择代理方案，不产生副作用
func DecideProxy(cfg ProxyConfig, env Environment) ProxyPlan {
	if cfg.ProxyCommand != "" {
		return ProxyPlan{
			Kind:            ProxyCommand,
			Command:         cfg.ProxyCommand,
			AskpassPassword: cfg.BastionPassword,
		}
	}
	if cfg.BastionHost == "" {
		return ProxyPlan{Kind: ProxyNone}
	}

	hop := JumpHop{
		Host:     cfg.BastionHost,
		Port:     cfg.BastionPort,
		User:     cfg.BastionUser,
		Password: cfg.BastionPassword,
	}
	if hop.User == "" {
		hop.User = DefaultBastionUser
	}
	if hop.Port == 0 {
		hop.Port = DefaultPort
	}

	if hop.Password != "" && env.GOOS == "windows" && env.LookPath != nil {
		if path, err := env.LookPath(relayBinary); err == nil {
			return ProxyPlan{Kind: ProxyPasswordRelay, Jump: hop, RelayPath: path}
		}
	}
	return ProxyPlan{Kind: ProxyNativeJump, Jump: hop}
}

// RelayArgs plink 参数，-nc 直接指向目标地址
// 密码与跳板机参数原样传递，不做占位符替换
func (p ProxyPlan) RelayArgs(host string, port int) []string {
	args := []string{"-batch", "-ssh", "-pw", p.Jump.Password}
	if p.Jump.Port != 0 && p.Jump.Port != DefaultPort {
		args = append(args, "-P", strconv.Itoa(p.Jump.Port))
	}
	return append(args, "-nc", host+":"+strconv.Itoa(port), p.Jump.User+"@"+p.Jump.Host)
}

// Describe 日志用描述，不包含密码
func (p ProxyPlan) Describe() string {
	switch p.Kind {
	case ProxyNativeJump, ProxyPasswordRelay:
		return fmt.Sprintf("%s via %s", p.Kind, p.Jump)
	case ProxyCommand:
		return fmt.Sprintf("%s %q", p.Kind, p.Command)
	default:
		return p.Kind.String()
	}
}

// ExpandProxyCommand 替换代理命令中的 %h %p %r 占位符
func ExpandProxyCommand(tmpl, host string, port int, user string) string {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		if ch != '%' || i+1 >= len(tmpl) {
			b.WriteByte(ch)
			continue
		}
		switch tmpl[i+1] {
		case 'h':
			b.WriteString(host)
		case 'p':
			b.WriteString(strconv.Itoa(port))
		case 'r':
			b.WriteString(user)
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte(ch)
			continue
		}
		i++
	}
	return b.String()
}
