// Package content 关卡描述与交互内容的链下存储
//
// 链上只保存不透明句柄，正文通过句柄在内容存储中读取。
package content

import (
	"context"

	"github.com/google/uuid"
	apperrors "github.com/wfunc/gamemaster/internal/errors"
)

// Store 内容存储接口
type Store interface {
	// Put 写入内容并返回句柄
	Put(ctx context.Context, payload string) (string, error)
	// Get 按句柄读取内容，句柄不存在时返回 ErrNotFound
	Get(ctx context.Context, handle string) (string, error)
}

// handleLen 规范 UUID 文本的长度，xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx
const handleLen = 36

// IsHandle 判断引用是否为内容存储句柄，只接受 NewHandle 生成的规范格式
func IsHandle(ref string) bool {
	if len(ref) != handleLen {
		return false
	}
	_, err := uuid.Parse(ref)
	return err == nil
}

// NewHandle 生成新的内容句柄
func NewHandle() string {
	return uuid.New().String()
}

// Resolve 解析内容引用：句柄从存储中读取，其他内容视为内联文本
func Resolve(ctx context.Context, store Store, ref string) (string, error) {
	if !IsHandle(ref) {
		return ref, nil
	}
	if store == nil {
		return "", apperrors.New(apperrors.ErrContentStore, "未配置内容存储")
	}
	return store.Get(ctx, ref)
}

// notFound 句柄不存在
func notFound(handle string) error {
	return apperrors.New(apperrors.ErrNotFound, "内容句柄: "+handle)
}
