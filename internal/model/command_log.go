package model

import "time"

// CommandLog 采集过程中每条命令的执行记录
type CommandLog struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	RunID      string    `json:"run_id" gorm:"type:varchar(64);index"`
	Host       string    `json:"host" gorm:"type:varchar(255);index;not null"`
	Command    string    `json:"command" gorm:"type:text;not null"`
	ExitCode   int       `json:"exit_code"`
	Error      string    `json:"error" gorm:"type:text"`
	OutputPath string    `json:"output_path" gorm:"type:text"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (CommandLog) TableName() string { return "command_logs" }
