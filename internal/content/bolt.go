package content

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"go.etcd.io/bbolt"
)

var contentBucket = []byte("content")

// BoltStore 基于 bbolt 文件的内容存储
type BoltStore struct {
	bolt *bbolt.DB
}

// OpenBolt 打开内容存储文件，不存在时创建
func OpenBolt(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建内容存储目录失败: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrContentStore, "打开内容存储")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(contentBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrContentStore, "创建内容桶")
	}

	return &BoltStore{bolt: db}, nil
}

// Put 写入内容
func (s *BoltStore) Put(ctx context.Context, payload string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrTimeout, "写入内容")
	}

	handle := NewHandle()
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(contentBucket).Put([]byte(handle), []byte(payload))
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrContentStore, "写入内容")
	}
	return handle, nil
}

// Get 读取内容
func (s *BoltStore) Get(ctx context.Context, handle string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrTimeout, "读取内容")
	}

	var payload []byte
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(contentBucket).Get([]byte(handle))
		if value == nil {
			return notFound(handle)
		}
		// value 只在事务内有效
		payload = append([]byte(nil), value...)
		return nil
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return "", err
		}
		return "", apperrors.Wrap(err, apperrors.ErrContentStore, "读取内容")
	}
	return string(payload), nil
}

// Close 关闭存储
func (s *BoltStore) Close() error {
	return s.bolt.Close()
}
