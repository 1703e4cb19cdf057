package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sshcollectorpro/junosconnect/internal/config"
	"github.com/sshcollectorpro/junosconnect/pkg/logger"
)

const defaultContentType = "text/plain; charset=utf-8"

// StorageWriter 采集输出归档
type StorageWriter interface {
	Write(ctx context.Context, meta ArchiveMeta, content string) (StoredObject, error)
}

// ArchiveMeta 单条命令输出的归档元数据
type ArchiveMeta struct {
	// Device 设备标识，通常为主机名或地址
	Device string
	// Started 设备采集开始时间，同一设备的所有命令共用一个目录
	Started time.Time
	Command string
}

// StoredObject 归档结果
type StoredObject struct {
	URI         string `json:"uri"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	ContentType string `json:"content_type"`
}

// ObjectKey 归档相对路径：prefix/device/YYYYMMDD_HHMMSS/<command-slug>.txt
func ObjectKey(prefix string, meta ArchiveMeta) string {
	started := meta.Started
	if started.IsZero() {
		started = time.Now()
	}
	parts := []string{}
	if p := strings.Trim(strings.TrimSpace(prefix), "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, slug(meta.Device), started.Format("20060102_150405"), slug(meta.Command)+".txt")
	return path.Join(parts...)
}

// NewStorageWriter 按 archive.backend 创建写入器，minio 不可用时回退本地
func NewStorageWriter(cfg config.ArchiveConfig) StorageWriter {
	local := &LocalStorageWriter{cfg: cfg}
	if !strings.EqualFold(strings.TrimSpace(cfg.Backend), "minio") {
		return local
	}
	return &DelegatingStorageWriter{local: local, minio: initMinioWriter(cfg)}
}

// DelegatingStorageWriter 优先 MinIO，失败时写本地
type DelegatingStorageWriter struct {
	local *LocalStorageWriter
	minio *MinioStorageWriter
}

func (w *DelegatingStorageWriter) Write(ctx context.Context, meta ArchiveMeta, content string) (StoredObject, error) {
	if w.minio == nil {
		logger.Warnf("minio backend selected but client not initialized, writing to local")
		return w.local.Write(ctx, meta, content)
	}
	obj, err := w.minio.Write(ctx, meta, content)
	if err == nil {
		return obj, nil
	}
	logger.Warnf("minio write failed, falling back to local: %v", err)
	objLocal, lerr := w.local.Write(ctx, meta, content)
	if lerr != nil {
		return StoredObject{}, fmt.Errorf("minio write failed: %v; local fallback failed: %w", err, lerr)
	}
	return objLocal, nil
}

// LocalStorageWriter 本地文件写入
type LocalStorageWriter struct {
	cfg config.ArchiveConfig
}

func (w *LocalStorageWriter) Write(ctx context.Context, meta ArchiveMeta, content string) (StoredObject, error) {
	baseDir := strings.TrimSpace(w.cfg.Local.BaseDir)
	if baseDir == "" {
		baseDir = "./data/archive"
	}
	fullPath := filepath.Join(baseDir, filepath.FromSlash(ObjectKey(w.cfg.Prefix, meta)))

	if w.cfg.Local.MkdirIfMissing {
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return StoredObject{}, fmt.Errorf("failed to create dir: %w", err)
		}
	}
	data := []byte(content)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return StoredObject{}, fmt.Errorf("failed to write file: %w", err)
	}
	return StoredObject{
		URI:         "file://" + fullPath,
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: defaultContentType,
	}, nil
}

// MinioStorageWriter MinIO 对象存储写入
type MinioStorageWriter struct {
	cfg           config.ArchiveConfig
	client        *minio.Client
	endpoint      string
	bucketEnsured bool
}

// initMinioWriter 配置不完整或客户端创建失败时返回 nil
func initMinioWriter(cfg config.ArchiveConfig) *MinioStorageWriter {
	host := strings.TrimSpace(cfg.Minio.Host)
	if host == "" || cfg.Minio.Port <= 0 {
		logger.Warnf("minio configuration incomplete, host/port missing")
		return nil
	}
	endpoint := net.JoinHostPort(host, fmt.Sprint(cfg.Minio.Port))

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   16,
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.Minio.AccessKey, cfg.Minio.SecretKey, ""),
		Secure:    cfg.Minio.Secure,
		Transport: transport,
	})
	if err != nil {
		logger.Errorf("minio client initialization failed: %v", err)
		return nil
	}
	return &MinioStorageWriter{cfg: cfg, client: client, endpoint: endpoint}
}

// Write 将内容写入 MinIO，对象路径与本地布局一致
func (w *MinioStorageWriter) Write(ctx context.Context, meta ArchiveMeta, content string) (StoredObject, error) {
	bucket := strings.TrimSpace(w.cfg.Minio.Bucket)
	if bucket == "" {
		return StoredObject{}, fmt.Errorf("minio bucket not configured")
	}
	if err := w.fastConnectivityCheck(ctx); err != nil {
		return StoredObject{}, fmt.Errorf("minio connectivity failed to %s: %w", w.endpoint, err)
	}
	if !w.bucketEnsured {
		if err := w.ensureBucket(ctx, bucket); err != nil {
			return StoredObject{}, fmt.Errorf("minio ensure bucket failed: %w", err)
		}
		w.bucketEnsured = true
	}

	objectName := ObjectKey(w.cfg.Prefix, meta)
	data := []byte(content)
	var lastErr error
	for _, wait := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		attemptCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err := w.client.PutObject(attemptCtx, bucket, objectName, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: defaultContentType})
		cancel()
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return StoredObject{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	if lastErr != nil {
		return StoredObject{}, fmt.Errorf("minio put object failed after retries: %w", lastErr)
	}
	return StoredObject{
		URI:         "minio://" + path.Join(bucket, objectName),
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: defaultContentType,
	}, nil
}

// fastConnectivityCheck TCP 直连探测，避免 SDK 在不可达时长时间重试
func (w *MinioStorageWriter) fastConnectivityCheck(ctx context.Context) error {
	d := &net.Dialer{Timeout: 3 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", w.endpoint)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (w *MinioStorageWriter) ensureBucket(ctx context.Context, bucket string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := w.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return w.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

var slugRe = regexp.MustCompile(`[^a-z0-9._-]+`)

// slug 文件名安全化：小写，空白与路径分隔符转下划线
func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", "|", "_").Replace(s)
	s = slugRe.ReplaceAllString(s, "")
	s = strings.Trim(s, "._")
	if s == "" {
		s = "unknown"
	}
	return s
}
