package simulate

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Platform 固定表在数据库中的平台名
const Platform = "junos"

// Fixture 一条预置应答，Match 为命令中可识别的子串（不区分大小写）
type Fixture struct {
	Match    string `yaml:"match" json:"match"`
	Output   string `yaml:"output" json:"output"`
	ExitCode int    `yaml:"exit_code,omitempty" json:"exit_code"`

	// Delay 应答前的等待，模拟慢命令
	Delay time.Duration `yaml:"delay,omitempty" json:"delay,omitempty"`
}

// Response 查表结果
type Response struct {
	Output   string
	ExitCode int
	Delay    time.Duration
}

// Table 模拟设备的命令应答表，可并发读写
type Table struct {
	mu       sync.RWMutex
	fixtures []Fixture
}

// NewTable 以给定条目创建应答表，Match 相同者后者覆盖前者
func NewTable(fixtures ...Fixture) *Table {
	t := &Table{}
	for _, f := range fixtures {
		t.Set(f)
	}
	return t
}

// Lookup 取最长命中子串的应答；无命中时返回 Junos 风格的未知命令错误
func (t *Table) Lookup(cmd string) Response {
	lc := strings.ToLower(strings.TrimSpace(cmd))

	t.mu.RLock()
	defer t.mu.RUnlock()
	best := -1
	for i, f := range t.fixtures {
		key := strings.ToLower(f.Match)
		if key == "" || !strings.Contains(lc, key) {
			continue
		}
		if best < 0 || len(key) > len(t.fixtures[best].Match) {
			best = i
		}
	}
	if best < 0 {
		return Response{Output: unknownCommand(cmd), ExitCode: 1}
	}
	f := t.fixtures[best]
	return Response{Output: f.Output, ExitCode: f.ExitCode, Delay: f.Delay}
}

// Set 新增或替换一条应答
func (t *Table) Set(f Fixture) {
	f.Match = strings.TrimSpace(f.Match)
	if f.Match == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.fixtures {
		if strings.EqualFold(t.fixtures[i].Match, f.Match) {
			t.fixtures[i] = f
			return
		}
	}
	t.fixtures = append(t.fixtures, f)
}

// Delete 删除一条应答
func (t *Table) Delete(match string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.fixtures {
		if strings.EqualFold(t.fixtures[i].Match, strings.TrimSpace(match)) {
			t.fixtures = append(t.fixtures[:i], t.fixtures[i+1:]...)
			return true
		}
	}
	return false
}

// Merge 将 other 的条目合并进来
func (t *Table) Merge(other *Table) {
	for _, f := range other.Fixtures() {
		t.Set(f)
	}
}

// Fixtures 按 Match 排序的条目副本
func (t *Table) Fixtures() []Fixture {
	t.mu.RLock()
	out := make([]Fixture, len(t.fixtures))
	copy(out, t.fixtures)
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Match < out[j].Match })
	return out
}

// Len 条目数
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.fixtures)
}

func unknownCommand(cmd string) string {
	word := cmd
	if fields := strings.Fields(cmd); len(fields) > 0 {
		word = fields[0]
	}
	return fmt.Sprintf("error: unknown command: %s\n", word)
}

// tableFile 应答文件格式
type tableFile struct {
	// Defaults 为 true 时在内置 Junos 应答之上叠加
	Defaults bool      `yaml:"defaults"`
	Fixtures []Fixture `yaml:"fixtures"`
}

// LoadTableFile 读取 YAML 应答文件
func LoadTableFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse fixture file %s: %w", path, err)
	}
	t := NewTable()
	if file.Defaults {
		t.Merge(DefaultTable())
	}
	for _, f := range file.Fixtures {
		t.Set(f)
	}
	return t, nil
}

// WriteTableFile 将应答表写为 YAML
func WriteTableFile(path string, t *Table) error {
	data, err := yaml.Marshal(tableFile{Fixtures: t.Fixtures()})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
