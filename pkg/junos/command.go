package junos

import (
	"regexp"
	"strings"
)

// 会被本地 shell 或设备 CLI 当作控制符的字符，管道 | 允许
const forbiddenChars = ";&<>$`"

// 输出末尾的纯提示符装饰行，如 "%"、">"、"# "
var promptDecoration = regexp.MustCompile(`^[%>$#]{1,3}\s*$`)

// SanitizeCommand 拒绝含控制字符的命令，通过时返回去掉首尾空白的命令
func SanitizeCommand(cmd string) (string, error) {
	if strings.ContainsAny(cmd, "\r\n") {
		return "", &CommandRejectedError{Command: cmd, Reason: "embedded line break"}
	}
	if i := strings.IndexAny(cmd, forbiddenChars); i >= 0 {
		return "", &CommandRejectedError{Command: cmd, Reason: "forbidden character " + string(cmd[i])}
	}
	for i := 0; i < len(cmd); i++ {
		if cmd[i] != '\\' {
			continue
		}
		if i+1 >= len(cmd) || strings.IndexByte("nrt", cmd[i+1]) < 0 {
			return "", &CommandRejectedError{Command: cmd, Reason: "unsupported backslash escape"}
		}
		i++
	}
	return strings.TrimSpace(cmd), nil
}

// CleanOutput 去掉命令回显行与末尾的提示符装饰行
func CleanOutput(output, cmd string) string {
	echo := strings.TrimSpace(cmd)
	lines := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")

	kept := lines[:0]
	for _, line := range lines {
		if echo != "" && strings.TrimSpace(line) == echo {
			continue
		}
		kept = append(kept, line)
	}
	for len(kept) > 0 && promptDecoration.MatchString(kept[len(kept)-1]) {
		kept = kept[:len(kept)-1]
	}
	return strings.Join(kept, "\n")
}
