package junos

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/sshcollectorpro/junosconnect/pkg/ssh"
)

const (
	DefaultPort              = 22
	DefaultTimeout           = 30 * time.Second
	DefaultKeepAliveInterval = 60 * time.Second
)

// Options 单台设备的连接参数，构造后不再修改
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	KeyFiles []string
	KeysOnly bool

	Timeout           time.Duration
	KeepAlive         bool
	KeepAliveInterval time.Duration
	KnownHostsFile    string

	BastionHost     string
	BastionUser     string
	BastionPort     int
	BastionPassword string
	ProxyCommand    string

	Simulated   bool
	DetectFacts bool

	explicitBastionPassword string
}

// ParseOptions 校验并规整框架传入的扁平参数
// 顺序：必填项 → 数值范围 → 互斥关系
func ParseOptions(raw map[string]any) (*Options, error) {
	o := &Options{
		Port:              DefaultPort,
		Timeout:           DefaultTimeout,
		KeepAlive:         true,
		KeepAliveInterval: DefaultKeepAliveInterval,
		BastionUser:       ssh.DefaultBastionUser,
		BastionPort:       DefaultPort,
		DetectFacts:       true,
	}

	var err error
	o.Host = strings.TrimSpace(stringOpt(raw, "host"))
	o.User = strings.TrimSpace(stringOpt(raw, "user"))
	if o.Host == "" {
		return nil, &ConfigurationError{Field: "host", Reason: "is required"}
	}
	if o.User == "" {
		return nil, &ConfigurationError{Field: "user", Reason: "is required"}
	}

	o.Password = stringOpt(raw, "password")
	o.KnownHostsFile = stringOpt(raw, "known_hosts")
	o.BastionHost = strings.TrimSpace(stringOpt(raw, "bastion_host"))
	o.explicitBastionPassword = stringOpt(raw, "bastion_password")
	o.BastionPassword = o.explicitBastionPassword
	o.ProxyCommand = strings.TrimSpace(stringOpt(raw, "proxy_command"))
	if u := strings.TrimSpace(stringOpt(raw, "bastion_user")); u != "" {
		o.BastionUser = u
	}
	if o.BastionPassword == "" {
		o.BastionPassword = o.Password
	}
	if o.KeyFiles, err = keyFilesOpt(raw); err != nil {
		return nil, err
	}

	if o.Port, err = portOpt(raw, "port", o.Port); err != nil {
		return nil, err
	}
	if o.BastionPort, err = portOpt(raw, "bastion_port", o.BastionPort); err != nil {
		return nil, err
	}
	if o.Timeout, err = durationOpt(raw, "timeout", o.Timeout); err != nil {
		return nil, err
	}
	if o.KeepAliveInterval, err = durationOpt(raw, "keepalive_interval", o.KeepAliveInterval); err != nil {
		return nil, err
	}

	if o.KeysOnly, err = boolOpt(raw, "keys_only", false); err != nil {
		return nil, err
	}
	if o.KeepAlive, err = boolOpt(raw, "keepalive", o.KeepAlive); err != nil {
		return nil, err
	}
	if o.DetectFacts, err = boolOpt(raw, "detect_facts", o.DetectFacts); err != nil {
		return nil, err
	}
	if o.Simulated, err = boolOpt(raw, "simulated", false); err != nil {
		return nil, err
	}
	if !o.Simulated {
		if o.Simulated, err = boolOpt(raw, "mock", false); err != nil {
			return nil, err
		}
	}

	if o.BastionHost != "" && o.ProxyCommand != "" {
		return nil, &ConfigurationError{
			Reason: "bastion_host and proxy_command are mutually exclusive, configure only one of them",
		}
	}
	return o, nil
}

// Proxied 是否经由跳板机或代理命令
func (o *Options) Proxied() bool {
	return o.BastionHost != "" || o.ProxyCommand != ""
}

// ProxyJump 跳板机描述 user@host[:port]，未配置跳板机时为空
func (o *Options) ProxyJump() string {
	if o.BastionHost == "" {
		return ""
	}
	return ssh.JumpHop{Host: o.BastionHost, Port: o.BastionPort, User: o.BastionUser}.String()
}

func (o *Options) proxyConfig() ssh.ProxyConfig {
	cfg := ssh.ProxyConfig{ProxyCommand: o.ProxyCommand}
	if o.BastionHost != "" {
		cfg.BastionHost = o.BastionHost
		cfg.BastionUser = o.BastionUser
		cfg.BastionPort = o.BastionPort
		cfg.BastionPassword = o.BastionPassword
	} else if o.ProxyCommand != "" {
		// 仅在显式提供跳板机密码时为代理命令准备 askpass
		cfg.BastionPassword = o.explicitBastionPassword
	}
	return cfg
}

func stringOpt(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	return cast.ToString(v)
}

func boolOpt(raw map[string]any, key string, def bool) (bool, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return def, nil
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return def, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, &ConfigurationError{Field: key, Reason: fmt.Sprintf("must be a boolean, got %v", v)}
	}
	return b, nil
}

// portOpt 端口须为 1-65535 的整数，字符串须为纯数字
func portOpt(raw map[string]any, key string, def int) (int, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return def, nil
	}
	var (
		n   int64
		err error
	)
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return def, nil
		}
		n, err = strconv.ParseInt(s, 10, 64)
	case float32, float64:
		f := cast.ToFloat64(t)
		if f != math.Trunc(f) {
			err = fmt.Errorf("not an integer")
		}
		n = int64(f)
	default:
		n, err = cast.ToInt64E(v)
	}
	if err != nil {
		return 0, &ConfigurationError{Field: key, Reason: fmt.Sprintf("must be an integer port number, got %v", v)}
	}
	if n < 1 || n > 65535 {
		return 0, &ConfigurationError{Field: key, Reason: fmt.Sprintf("must be between 1 and 65535, got %d", n)}
	}
	return int(n), nil
}

// durationOpt 数值按秒计，字符串可为秒数或 Go 时长如 "45s"
func durationOpt(raw map[string]any, key string, def time.Duration) (time.Duration, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return def, nil
	}
	var d time.Duration
	switch t := v.(type) {
	case time.Duration:
		d = t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return def, nil
		}
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			d = time.Duration(secs * float64(time.Second))
		} else if parsed, err := time.ParseDuration(s); err == nil {
			d = parsed
		} else {
			return 0, &ConfigurationError{Field: key, Reason: fmt.Sprintf("must be a number of seconds or a duration, got %q", t)}
		}
	default:
		secs, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, &ConfigurationError{Field: key, Reason: fmt.Sprintf("must be a number of seconds, got %v", v)}
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d <= 0 {
		return 0, &ConfigurationError{Field: key, Reason: "must be positive"}
	}
	return d, nil
}

func keyFilesOpt(raw map[string]any) ([]string, error) {
	v, ok := raw["key_files"]
	if !ok || v == nil {
		return nil, nil
	}
	var files []string
	switch t := v.(type) {
	case string:
		files = strings.Split(t, ",")
	default:
		list, err := cast.ToStringSliceE(v)
		if err != nil {
			return nil, &ConfigurationError{Field: "key_files", Reason: "must be a path or a list of paths"}
		}
		files = list
	}
	out := files[:0]
	for _, f := range files {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out, nil
}
