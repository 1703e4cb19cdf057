package junos

import (
	"errors"
	"fmt"
)

// ErrFileTransferNotSupported Junos 连接不提供文件传输
var ErrFileTransferNotSupported = errors.New("file transfer is not supported on Juniper devices, use command execution instead")

// ConfigurationError 连接参数非法，构造阶段即返回
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid connection options: " + e.Reason
	}
	return fmt.Sprintf("invalid connection option %q: %s", e.Field, e.Reason)
}

// CommandRejectedError 命令包含不允许的字符，未发送到设备
type CommandRejectedError struct {
	Command string
	Reason  string
}

func (e *CommandRejectedError) Error() string {
	return fmt.Sprintf("command rejected (%s): %q", e.Reason, e.Command)
}

// TransportError 建立会话失败，Message 为面向用户的诊断文本
type TransportError struct {
	Host    string
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("failed to connect to %s: %v", e.Host, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
