package simulate

import (
	"fmt"
	"strings"

	"github.com/sshcollectorpro/junosconnect/internal/model"
	"gorm.io/gorm"
)

// LoadTableFromDB 在内置应答之上叠加 sim_commands 中该平台的记录
func LoadTableFromDB(db *gorm.DB, platform string) (*Table, error) {
	var rows []model.SimCommand
	if err := db.Where("platform = ?", platform).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load sim commands: %w", err)
	}
	t := DefaultTable()
	for _, r := range rows {
		t.Set(Fixture{Match: r.Command, Output: r.Output, ExitCode: r.ExitCode})
	}
	return t, nil
}

// SeedDB 写入表中尚未存在的条目，返回新增数量
func SeedDB(db *gorm.DB, platform string, t *Table) (int, error) {
	var existing []model.SimCommand
	if err := db.Where("platform = ?", platform).Find(&existing).Error; err != nil {
		return 0, fmt.Errorf("failed to load sim commands: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[strings.ToLower(e.Command)] = true
	}

	var added []model.SimCommand
	for _, f := range t.Fixtures() {
		if seen[strings.ToLower(f.Match)] {
			continue
		}
		added = append(added, model.SimCommand{
			Platform: platform,
			Command:  f.Match,
			Output:   f.Output,
			ExitCode: f.ExitCode,
		})
	}
	if len(added) == 0 {
		return 0, nil
	}
	if err := db.Create(&added).Error; err != nil {
		return 0, fmt.Errorf("failed to seed sim commands: %w", err)
	}
	return len(added), nil
}
