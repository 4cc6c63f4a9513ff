package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Validate 日志配置校验：tag 校验之后确认级别能被 zap 解析、目录可写
func (l *ZapLogConfig) Validate() error {
	if err := valid.Struct(l); err != nil {
		return fmt.Errorf("log config invalid: %w", err)
	}
	if _, err := zapcore.ParseLevel(strings.ToLower(l.Level)); err != nil {
		return fmt.Errorf("log.level invalid: %w", err)
	}

	abs, err := filepath.Abs(l.Path)
	if err != nil {
		return fmt.Errorf("log.path %s cannot be resolved: %w", l.Path, err)
	}
	if err := ensureWritableDir(abs); err != nil {
		return fmt.Errorf("log.path %s is not writable: %w", l.Path, err)
	}
	return nil
}

// ensureWritableDir 目录不存在时创建，并用临时文件探测写权限
func ensureWritableDir(path string) error {
	stat, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(path, 0o755); err != nil {
			return err
		}
	case err != nil:
		return err
	case !stat.IsDir():
		return fmt.Errorf("%s is not a directory", path)
	}

	f, err := os.CreateTemp(path, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
