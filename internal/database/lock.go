package database

import (
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/logger"
	"go.uber.org/zap"
)

const (
	lockSuffix   = ".migration.lock"
	lockAttempts = 30
	lockWait     = time.Second
	lockStaleAge = 5 * time.Minute
)

// fileLock 数据库文件旁的独占锁文件，同一时刻只允许一个进程迁移 SQLite 库
type fileLock struct {
	path     string
	attempts int
	wait     time.Duration
	file     *os.File
}

func newFileLock(dbPath string) *fileLock {
	return &fileLock{
		path:     dbPath + lockSuffix,
		attempts: lockAttempts,
		wait:     lockWait,
	}
}

// acquire 以 O_EXCL 创建锁文件，超过 lockStaleAge 的残留锁直接接管
func (l *fileLock) acquire() error {
	log := logger.WithModule("database").With(zap.String("lock", l.path))

	for attempt := 1; attempt <= l.attempts; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
		if err == nil {
			l.file = f
			log.Debug("获取迁移锁成功", zap.Int("attempt", attempt))
			return nil
		}

		if stale(l.path, lockStaleAge) {
			log.Warn("迁移锁已过期，接管")
			_ = os.Remove(l.path)
			continue
		}
		time.Sleep(l.wait)
	}

	return apperrors.Newf(apperrors.ErrDatabaseConnect, "迁移锁被占用: %s", l.path)
}

func (l *fileLock) release() {
	if l.file == nil {
		return
	}
	_ = l.file.Close()
	_ = os.Remove(l.path)
	l.file = nil
	logger.WithModule("database").Debug("释放迁移锁", zap.String("lock", l.path))
}

// CleanupStaleLocks 删除数据库文件旁长时间未更新的锁文件
func CleanupStaleLocks(dbPath string) {
	matches, _ := filepath.Glob(dbPath + "*.lock")
	for _, name := range matches {
		if stale(name, 2*lockStaleAge) {
			logger.WithModule("database").Info("清理过期锁文件", zap.String("file", name))
			_ = os.Remove(name)
		}
	}
}

func stale(path string, age time.Duration) bool {
	info, err := os.Stat(path)
	return err == nil && time.Since(info.ModTime()) > age
}
