package junos

import (
	"context"
	"fmt"
	"strings"
)

// Platform 设备平台描述
type Platform struct {
	Name     string   `json:"name"`
	Families []string `json:"families"`
	Release  string   `json:"release,omitempty"`
	Arch     string   `json:"arch,omitempty"`
	Model    string   `json:"model,omitempty"`
}

// Platform 由设备事实组成平台描述
func (c *Connection) Platform(ctx context.Context) Platform {
	f := c.Facts(ctx)
	return Platform{
		Name:     "juniper",
		Families: []string{"bsd", "unix", "network"},
		Release:  f.Version,
		Arch:     f.Architecture,
		Model:    f.Model,
	}
}

// operationalFiles 运行状态的虚拟路径
var operationalFiles = map[string]string{
	"version":    "show version",
	"chassis":    "show chassis hardware",
	"interfaces": "show interfaces terse",
	"routes":     "show route summary",
	"uptime":     "show system uptime",
}

// VirtualFile 映射为 show 命令的只读虚拟文件
type VirtualFile struct {
	Path    string
	Command string
	conn    *Connection
}

// File 解析虚拟路径：/config/<层级...> 与 /operational/<名称>
func (c *Connection) File(path string) (*VirtualFile, error) {
	p := strings.Trim(path, "/")
	switch {
	case p == "config":
		return &VirtualFile{Path: path, Command: "show configuration", conn: c}, nil
	case strings.HasPrefix(p, "config/"):
		hierarchy := strings.ReplaceAll(strings.TrimPrefix(p, "config/"), "/", " ")
		return &VirtualFile{Path: path, Command: "show configuration " + hierarchy, conn: c}, nil
	case strings.HasPrefix(p, "operational/"):
		if cmd, ok := operationalFiles[strings.TrimPrefix(p, "operational/")]; ok {
			return &VirtualFile{Path: path, Command: cmd, conn: c}, nil
		}
	}
	return nil, fmt.Errorf("no virtual file at %s", path)
}

// Content 执行对应命令读取内容
func (f *VirtualFile) Content(ctx context.Context) (string, error) {
	res, err := f.conn.Execute(ctx, f.Command)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", fmt.Errorf("read %s: %s", f.Path, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}
