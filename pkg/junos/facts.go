package junos

import (
	"context"
	"regexp"
	"strings"
)

// VersionCommand 取版本与型号的命令
const VersionCommand = "show version"

// Facts 设备事实，空字符串表示未知
type Facts struct {
	Version      string `json:"version,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	Model        string `json:"model,omitempty"`
}

// versionRules 由具体到宽泛，取第一个捕获组
var versionRules = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^Junos:\s+(\S+)`),
	regexp.MustCompile(`JUNOS Software Release \[([^\]]+)\]`),
	regexp.MustCompile(`JUNOS [\w ,.\-]*?\[([\w.\-]+)\]`),
	regexp.MustCompile(`(?i)junos version\s+([\w.\-]+)`),
	regexp.MustCompile(`(?i)\bversion\s+(\d+\.\d[\w.\-]*)`),
}

// modelRules 型号提取规则
var modelRules = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^Model:\s+(\S+)`),
	regexp.MustCompile(`(?i)\b(v?(?:srx|mx|ex|qfx|ptx|acx)\d+[\w\-]*)\b`),
}

// modelFamilies 型号前缀到处理器架构，先长后短
var modelFamilies = []struct {
	prefix string
	arch   string
}{
	{"vsrx", "x86_64"},
	{"vmx", "x86_64"},
	{"srx", "x86_64"},
	{"mx", "x86_64"},
	{"ptx", "x86_64"},
	{"qfx", "x86_64"},
	{"acx", "x86_64"},
	{"ex", "arm64"},
}

func firstMatch(rules []*regexp.Regexp, text string) string {
	for _, re := range rules {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// ParseVersion 从 show version 输出提取版本号
func ParseVersion(output string) string {
	return firstMatch(versionRules, output)
}

// ParseModel 从 show version 输出提取型号
func ParseModel(output string) string {
	return strings.ToLower(firstMatch(modelRules, output))
}

// ArchitectureForModel 按型号族映射架构，未知族返回型号本身
func ArchitectureForModel(model string) string {
	model = strings.ToLower(model)
	if model == "" {
		return ""
	}
	for _, f := range modelFamilies {
		if strings.HasPrefix(model, f.prefix) {
			return f.arch
		}
	}
	return model
}

// ParseFacts 一次解析版本、型号与架构
func ParseFacts(output string) Facts {
	model := ParseModel(output)
	return Facts{
		Version:      ParseVersion(output),
		Architecture: ArchitectureForModel(model),
		Model:        model,
	}
}

// factDetector 每个连接最多探测一次，失败结果同样缓存
type factDetector struct {
	attempted bool
	raw       string
	facts     Facts
}

func (d *factDetector) detect(ctx context.Context, enabled bool, run func(context.Context, string) (string, bool)) Facts {
	if d.attempted {
		return d.facts
	}
	d.attempted = true
	if !enabled {
		return d.facts
	}
	out, ok := run(ctx, VersionCommand)
	if !ok {
		return d.facts
	}
	d.raw = out
	d.facts = ParseFacts(out)
	return d.facts
}
