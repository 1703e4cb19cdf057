package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// OutputLines 命令输出的首尾片段
type OutputLines struct {
	Head  []string
	Tail  []string
	Total int
}

// ParseOutputLines 提取输出的前 maxLines 行与后 maxLines 行
func ParseOutputLines(output string, maxLines int) OutputLines {
	if maxLines <= 0 {
		maxLines = 5
	}
	output = strings.ReplaceAll(output, "\r\n", "\n")
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return OutputLines{}
	}

	res := OutputLines{Total: len(lines)}
	if len(lines) <= maxLines {
		res.Head = lines
		return res
	}
	res.Head = lines[:maxLines]
	tailStart := len(lines) - maxLines
	if tailStart < maxLines {
		tailStart = maxLines
	}
	res.Tail = lines[tailStart:]
	return res
}

// String 单行展示，便于日志检索
func (o OutputLines) String() string {
	var b strings.Builder
	b.WriteString("head: [")
	b.WriteString(strings.Join(o.Head, " ⟩ "))
	b.WriteString("]")
	if len(o.Tail) > 0 {
		b.WriteString(", tail: [")
		b.WriteString(strings.Join(o.Tail, " ⟩ "))
		b.WriteString("]")
	}
	return b.String()
}

// DebugCommandOutput 在 debug 级别记录命令输出的首尾行
func DebugCommandOutput(host, command, output string, maxLines int) {
	if !GetLogger().IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	lines := ParseOutputLines(output, maxLines)
	if lines.Total == 0 {
		return
	}
	WithFields(logrus.Fields{
		"host":    host,
		"command": command,
		"lines":   lines.Total,
	}).Debugf("command output %s", lines)
}
