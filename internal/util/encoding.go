package util

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// legacyEncodings 设备输出中常见的非 UTF-8 编码，按顺序尝试
// 接口描述、banner 里的中文多为 GB18030/Big5，其余按 Latin-1 兜底
var legacyEncodings = []encoding.Encoding{
	simplifiedchinese.GB18030,
	traditionalchinese.Big5,
	charmap.ISO8859_1,
}

// EnsureUTF8Bytes 将终端输出转为 UTF-8 字符串，已是 UTF-8 时原样返回
func EnsureUTF8Bytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		return string(b)
	}
	for _, enc := range legacyEncodings {
		decoded, _, err := transform.Bytes(enc.NewDecoder(), b)
		if err == nil && utf8.Valid(decoded) {
			return string(decoded)
		}
	}
	return strings.ToValidUTF8(string(b), "�")
}
