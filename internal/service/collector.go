package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sshcollectorpro/junosconnect/internal/database"
	"github.com/sshcollectorpro/junosconnect/internal/model"
	"github.com/sshcollectorpro/junosconnect/pkg/junos"
	"github.com/sshcollectorpro/junosconnect/pkg/logger"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const defaultConcurrent = 8

// Collector 多设备批量采集，每台设备独立一个连接
type Collector struct {
	writer     StorageWriter
	db         *gorm.DB
	concurrent int
	connOpts   []junos.Option
}

// CollectorOption 采集器选项
type CollectorOption func(*Collector)

// WithStorage 归档每条命令输出
func WithStorage(w StorageWriter) CollectorOption {
	return func(c *Collector) { c.writer = w }
}

// WithDB 将每条命令记录写入 command_logs
func WithDB(db *gorm.DB) CollectorOption {
	return func(c *Collector) { c.db = db }
}

// WithConcurrency 同时采集的设备数
func WithConcurrency(n int) CollectorOption {
	return func(c *Collector) {
		if n > 0 {
			c.concurrent = n
		}
	}
}

// WithConnectionOptions 透传给每个 junos.Connection
func WithConnectionOptions(opts ...junos.Option) CollectorOption {
	return func(c *Collector) { c.connOpts = append(c.connOpts, opts...) }
}

func NewCollector(options ...CollectorOption) *Collector {
	c := &Collector{concurrent: defaultConcurrent}
	for _, o := range options {
		o(c)
	}
	return c
}

// CommandReport 单条命令结果
type CommandReport struct {
	Command  string        `json:"command"`
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"-"`
	Error    string        `json:"error,omitempty"`
	Object   *StoredObject `json:"object,omitempty"`
	Duration time.Duration `json:"duration"`
}

// DeviceReport 单台设备结果，Error 为连接或参数错误
type DeviceReport struct {
	Target   string          `json:"target"`
	Facts    junos.Facts     `json:"facts"`
	Commands []CommandReport `json:"commands"`
	Error    string          `json:"error,omitempty"`
}

// Failed 设备不可达或有命令失败
func (d *DeviceReport) Failed() bool {
	if d.Error != "" {
		return true
	}
	for _, c := range d.Commands {
		if c.ExitCode != 0 {
			return true
		}
	}
	return false
}

// RunSummary 一次采集的汇总
type RunSummary struct {
	RunID    string         `json:"run_id"`
	Started  time.Time      `json:"started"`
	Duration time.Duration  `json:"duration"`
	Devices  []DeviceReport `json:"devices"`
	Failed   int            `json:"failed"`
}

// Collect 并发采集所有目标；单台设备失败记录在报告中，不中断其他设备
// 仅在参数为空或 ctx 结束时返回错误
func (c *Collector) Collect(ctx context.Context, targets []map[string]any, commands []string) (*RunSummary, error) {
	if len(targets) == 0 {
		return nil, errors.New("no targets to collect")
	}
	if len(commands) == 0 {
		return nil, errors.New("no commands to run")
	}

	run := &RunSummary{
		RunID:   uuid.NewString(),
		Started: time.Now(),
		Devices: make([]DeviceReport, len(targets)),
	}
	log := logger.WithFields(logrus.Fields{"run_id": run.RunID})
	log.Infof("collecting %d commands from %d devices (concurrent %d)", len(commands), len(targets), c.concurrent)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrent)
	for i, target := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			run.Devices[i] = c.collectDevice(gctx, run, target, commands)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return run, fmt.Errorf("collect interrupted: %w", err)
	}

	for i := range run.Devices {
		if run.Devices[i].Failed() {
			run.Failed++
		}
	}
	run.Duration = time.Since(run.Started)
	log.Infof("collect finished in %s, %d/%d devices failed", run.Duration.Round(time.Millisecond), run.Failed, len(targets))
	return run, nil
}

func (c *Collector) collectDevice(ctx context.Context, run *RunSummary, target map[string]any, commands []string) DeviceReport {
	report := DeviceReport{Target: fmt.Sprint(target["host"])}
	conn, err := junos.NewFromMap(target, c.connOpts...)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	defer conn.Close()
	report.Target = conn.Options().Host
	log := logger.ForHost(report.Target).WithField("run_id", run.RunID)

	if err := conn.Connect(ctx); err != nil {
		report.Error = err.Error()
		log.Warnf("connect failed: %v", err)
		return report
	}
	report.Facts = conn.Facts(ctx)
	started := time.Now()

	for _, cmd := range commands {
		cr := CommandReport{Command: cmd}
		begin := time.Now()
		res, err := conn.Execute(ctx, cmd)
		cr.Duration = time.Since(begin)
		switch {
		case err != nil:
			cr.ExitCode = -1
			cr.Error = err.Error()
		case res.Success():
			cr.Output = res.Stdout
		default:
			cr.ExitCode = res.ExitCode
			cr.Output = res.Stderr
			cr.Error = firstLine(res.Stderr)
		}
		logger.DebugCommandOutput(report.Target, cmd, cr.Output, 5)

		if c.writer != nil && err == nil {
			obj, werr := c.writer.Write(ctx, ArchiveMeta{Device: report.Target, Started: started, Command: cmd}, cr.Output)
			if werr != nil {
				log.Warnf("archive %q failed: %v", cmd, werr)
			} else {
				cr.Object = &obj
			}
		}
		c.record(run.RunID, report.Target, cr)
		report.Commands = append(report.Commands, cr)
	}
	return report
}

// record 写入 command_logs，失败只记日志
func (c *Collector) record(runID, host string, cr CommandReport) {
	if c.db == nil {
		return
	}
	row := model.CommandLog{
		RunID:      runID,
		Host:       host,
		Command:    cr.Command,
		ExitCode:   cr.ExitCode,
		Error:      cr.Error,
		DurationMS: cr.Duration.Milliseconds(),
	}
	if cr.Object != nil {
		row.OutputPath = cr.Object.URI
	}
	err := database.WithRetry(c.db, func(d *gorm.DB) error { return d.Create(&row).Error }, 5, 50*time.Millisecond)
	if err != nil {
		logger.Warnf("record command log failed: %v", err)
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
