package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/sshcollectorpro/junosconnect/pkg/logger"
)

// EnvPrefix 环境变量前缀，device.* 同时接受 JUNIPER_HOST 这类短名
const EnvPrefix = "JUNIPER"

// Config 应用配置结构
type Config struct {
	Device   DeviceConfig   `mapstructure:"device"`
	Collect  CollectConfig  `mapstructure:"collect"`
	Simulate SimulateConfig `mapstructure:"simulate"`
	Database DatabaseConfig `mapstructure:"database"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Log      logger.Config  `mapstructure:"log"`
}

// DeviceConfig 目标设备连接参数，经 OptionMap 交给 junos.ParseOptions 校验
type DeviceConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	User     string   `mapstructure:"user"`
	Password string   `mapstructure:"password"`
	KeyFiles []string `mapstructure:"key_files"`
	KeysOnly bool     `mapstructure:"keys_only"`
	// Timeout 秒数或 Go 时长字符串，如 "30" / "1m"
	Timeout           string `mapstructure:"timeout"`
	KeepAlive         bool   `mapstructure:"keepalive"`
	KeepAliveInterval string `mapstructure:"keepalive_interval"`
	KnownHosts        string `mapstructure:"known_hosts"`

	BastionHost     string `mapstructure:"bastion_host"`
	BastionUser     string `mapstructure:"bastion_user"`
	BastionPort     int    `mapstructure:"bastion_port"`
	BastionPassword string `mapstructure:"bastion_password"`
	ProxyCommand    string `mapstructure:"proxy_command"`

	Simulated   bool `mapstructure:"simulated"`
	DetectFacts bool `mapstructure:"detect_facts"`

	// 端口被显式设置（含 0）时原样交给校验
	portSet, bastionPortSet bool
}

// CollectConfig 批量采集配置
type CollectConfig struct {
	Concurrent int      `mapstructure:"concurrent"`
	Commands   []string `mapstructure:"commands"`
	// Targets 设备列表，每项可覆盖 device 中的同名字段
	Targets []map[string]any `mapstructure:"targets"`
}

// SimulateConfig 模拟设备服务配置
type SimulateConfig struct {
	Listen      string            `mapstructure:"listen"`
	Hostname    string            `mapstructure:"hostname"`
	Users       map[string]string `mapstructure:"users"`
	HostKeyPath string            `mapstructure:"host_key_path"`
	IdleTimeout time.Duration     `mapstructure:"idle_timeout"`
	MaxConn     int               `mapstructure:"max_conn"`
	Forwarding  bool              `mapstructure:"forwarding"`
	// FixtureFile YAML 应答文件，修改后自动重新加载
	FixtureFile string `mapstructure:"fixture_file"`
	// AdminListen 非空时启动应答管理 HTTP 接口
	AdminListen string `mapstructure:"admin_listen"`
	GinMode     string `mapstructure:"gin_mode"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path            string        `mapstructure:"path"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ArchiveConfig 采集输出归档配置
type ArchiveConfig struct {
	// Backend local | minio
	Backend string             `mapstructure:"backend"`
	Prefix  string             `mapstructure:"prefix"`
	Local   LocalArchiveConfig `mapstructure:"local"`
	Minio   MinioConfig        `mapstructure:"minio"`
}

// LocalArchiveConfig 本地存储配置
type LocalArchiveConfig struct {
	BaseDir        string `mapstructure:"base_dir"`
	MkdirIfMissing bool   `mapstructure:"mkdir_if_missing"`
}

// MinioConfig 对象存储配置
type MinioConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
}

// deviceEnv 习惯用法的短环境变量名
var deviceEnv = map[string]string{
	"device.host":             "JUNIPER_HOST",
	"device.port":             "JUNIPER_PORT",
	"device.user":             "JUNIPER_USER",
	"device.password":         "JUNIPER_PASSWORD",
	"device.bastion_host":     "JUNIPER_BASTION_HOST",
	"device.bastion_user":     "JUNIPER_BASTION_USER",
	"device.bastion_port":     "JUNIPER_BASTION_PORT",
	"device.bastion_password": "JUNIPER_BASTION_PASSWORD",
	"device.proxy_command":    "JUNIPER_PROXY_COMMAND",
}

// FlagKeys 命令行参数名到配置键
var FlagKeys = map[string]string{
	"host":             "device.host",
	"port":             "device.port",
	"user":             "device.user",
	"password":         "device.password",
	"key-files":        "device.key_files",
	"keys-only":        "device.keys_only",
	"timeout":          "device.timeout",
	"known-hosts":      "device.known_hosts",
	"bastion-host":     "device.bastion_host",
	"bastion-user":     "device.bastion_user",
	"bastion-port":     "device.bastion_port",
	"bastion-password": "device.bastion_password",
	"proxy-command":    "device.proxy_command",
	"simulated":        "device.simulated",
	"concurrent":       "collect.concurrent",
	"listen":           "simulate.listen",
	"admin":            "simulate.admin_listen",
	"fixtures":         "simulate.fixture_file",
}

// Load 加载配置：默认值 < 配置文件 < 环境变量 < 命令行参数
// configPath 为空时按默认路径查找，找不到文件不视为错误
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("junos")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.junosconnect")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range deviceEnv {
		if err := v.BindEnv(key, env, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Device.portSet = v.IsSet("device.port")
	cfg.Device.bastionPortSet = v.IsSet("device.bastion_port")
	// 逗号分隔的环境变量形式
	if len(cfg.Device.KeyFiles) == 1 && strings.Contains(cfg.Device.KeyFiles[0], ",") {
		cfg.Device.KeyFiles = splitList(cfg.Device.KeyFiles[0])
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.keepalive", true)
	v.SetDefault("device.detect_facts", true)

	v.SetDefault("collect.concurrent", 8)
	v.SetDefault("collect.commands", []string{"show version", "show chassis hardware"})

	v.SetDefault("simulate.listen", "127.0.0.1:2222")
	v.SetDefault("simulate.hostname", "vsrx01")
	v.SetDefault("simulate.users", map[string]string{"admin": "admin"})
	v.SetDefault("simulate.idle_timeout", 10*time.Minute)
	v.SetDefault("simulate.gin_mode", "release")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.sqlite.path", "./data/junosconnect.db")
	v.SetDefault("database.sqlite.conn_max_lifetime", time.Hour)

	v.SetDefault("archive.backend", "local")
	v.SetDefault("archive.prefix", "junos")
	v.SetDefault("archive.local.base_dir", "./data/archive")
	v.SetDefault("archive.local.mkdir_if_missing", true)
	v.SetDefault("archive.minio.port", 9000)
	v.SetDefault("archive.minio.bucket", "junos-archive")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/junosconnect.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
}

// OptionMap 生成 junos.ParseOptions 所需的扁平选项，未设置的字段交由其默认值处理
func (d DeviceConfig) OptionMap() map[string]any {
	m := map[string]any{
		"host":         d.Host,
		"user":         d.User,
		"keys_only":    d.KeysOnly,
		"keepalive":    d.KeepAlive,
		"simulated":    d.Simulated,
		"detect_facts": d.DetectFacts,
	}
	setIf := func(key string, val any, ok bool) {
		if ok {
			m[key] = val
		}
	}
	setIf("port", d.Port, d.Port != 0 || d.portSet)
	setIf("password", d.Password, d.Password != "")
	setIf("key_files", d.KeyFiles, len(d.KeyFiles) > 0)
	setIf("timeout", d.Timeout, d.Timeout != "")
	setIf("keepalive_interval", d.KeepAliveInterval, d.KeepAliveInterval != "")
	setIf("known_hosts", d.KnownHosts, d.KnownHosts != "")
	setIf("bastion_host", d.BastionHost, d.BastionHost != "")
	setIf("bastion_user", d.BastionUser, d.BastionUser != "")
	setIf("bastion_port", d.BastionPort, d.BastionPort != 0 || d.bastionPortSet)
	setIf("bastion_password", d.BastionPassword, d.BastionPassword != "")
	setIf("proxy_command", d.ProxyCommand, d.ProxyCommand != "")
	return m
}

// TargetOptions 以 device 为基础叠加单个目标的覆盖项
func (c *Config) TargetOptions() []map[string]any {
	if len(c.Collect.Targets) == 0 {
		return []map[string]any{c.Device.OptionMap()}
	}
	out := make([]map[string]any, 0, len(c.Collect.Targets))
	for _, t := range c.Collect.Targets {
		m := c.Device.OptionMap()
		for k, val := range t {
			m[k] = val
		}
		out = append(out, m)
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
