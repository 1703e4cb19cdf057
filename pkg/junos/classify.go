package junos

import (
	"fmt"
	"regexp"
	"strings"
)

// ErrorCategory 设备错误类别
type ErrorCategory string

const (
	CategoryConfigState     ErrorCategory = "configuration-state"
	CategorySyntax          ErrorCategory = "syntax"
	CategoryUnknownCommand  ErrorCategory = "unknown-command"
	CategoryMissingArgument ErrorCategory = "missing-argument"
)

type errorRule struct {
	category ErrorCategory
	pattern  *regexp.Regexp
}

// errorRules 按顺序匹配，先命中者决定类别
var errorRules = []errorRule{
	{CategoryConfigState, regexp.MustCompile(`(?i)configuration database (is )?(locked|modified)`)},
	{CategoryConfigState, regexp.MustCompile(`(?i)configuration check-out failed`)},
	{CategoryConfigState, regexp.MustCompile(`(?im)^\s*error:\s*(configuration|commit|could not)`)},
	{CategorySyntax, regexp.MustCompile(`(?i)syntax error`)},
	{CategoryUnknownCommand, regexp.MustCompile(`(?i)unknown command`)},
	{CategoryUnknownCommand, regexp.MustCompile(`(?i)invalid (command|input)`)},
	{CategoryUnknownCommand, regexp.MustCompile(`(?i)is ambiguous`)},
	{CategoryMissingArgument, regexp.MustCompile(`(?i)missing argument`)},
	{CategoryMissingArgument, regexp.MustCompile(`(?i)incomplete command`)},
	// Junos 其余报错均以 error: 开头
	{CategorySyntax, regexp.MustCompile(`(?im)^\s*error:`)},
}

// ClassifyError 返回首个命中的类别，未命中时 ok 为 false
func ClassifyError(output string) (ErrorCategory, bool) {
	for _, r := range errorRules {
		if r.pattern.MatchString(output) {
			return r.category, true
		}
	}
	return "", false
}

// IsError 输出是否表示设备报错
func IsError(output string) bool {
	_, ok := ClassifyError(output)
	return ok
}

var proxyFailureHints = regexp.MustCompile(`(?i)permission denied|authentication|unable to authenticate|command failed`)

// ConnectionErrorMessage 生成连接失败的诊断信息
// 经跳板机或代理命令且表现为认证/代理失败时给出排查建议
func ConnectionErrorMessage(host string, o *Options, err error) string {
	cause := "unknown error"
	if err != nil {
		cause = err.Error()
	}
	if o == nil || !o.Proxied() || !proxyFailureHints.MatchString(cause) {
		return fmt.Sprintf("failed to connect to Juniper device %s: %s", host, cause)
	}

	via := o.ProxyJump()
	if via == "" {
		via = "proxy command " + o.ProxyCommand
	}
	var b strings.Builder
	fmt.Fprintf(&b, "failed to connect to Juniper device %s via %s: %s\n\n", host, via, cause)
	b.WriteString("Possible causes:\n")
	b.WriteString("  1. Incorrect bastion credentials (user or password)\n")
	b.WriteString("  2. The bastion requires key authentication but no usable key was offered\n")
	b.WriteString("  3. The bastion is unreachable on the configured port\n")
	b.WriteString("  4. The bastion does not permit forwarding to the device\n\n")
	b.WriteString("Solutions:\n")
	b.WriteString("  - Supply the bastion password with --bastion-password or JUNIPER_BASTION_PASSWORD\n")
	b.WriteString("  - Supply a private key with --key-files\n")
	b.WriteString("  - Load a key into ssh-agent (ssh-add) so it is offered automatically\n\n")
	b.WriteString("Run `junos exec --help` for all bastion and proxy options.")
	return b.String()
}
