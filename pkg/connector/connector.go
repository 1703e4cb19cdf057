// Package connector 定义目标系统上命令执行与文件传输的通用抽象
package connector

import (
	"context"
	"io"
)

// Result 单条命令的执行结果，ExitCode 为 0 表示成功
type Result struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Success 是否执行成功
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Connector 目标连接器
type Connector interface {
	// Connect 建立到目标的连接
	Connect(ctx context.Context) error

	// Execute 执行命令并返回结果
	Execute(ctx context.Context, cmd string) (*Result, error)

	// Upload 上传文件到目标
	Upload(ctx context.Context, src io.Reader, dst string, mode uint32) error

	// Download 从目标下载文件
	Download(ctx context.Context, src string, dst io.Writer) error

	// Close 断开连接
	Close() error

	// String 连接的可读描述
	String() string
}
