package repository

import (
	"context"
	"errors"

	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"gorm.io/gorm"
)

// BaseRepository 基础仓储接口
type BaseRepository interface {
	// GetDB 获取数据库实例
	GetDB() *gorm.DB
}

// Pagination 分页参数
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// 分页大小
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NewPagination 创建分页参数，页码从 1 开始，页大小限制在 MaxPageSize 以内
func NewPagination(page, pageSize int) *Pagination {
	if page <= 0 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return &Pagination{
		Page:     page,
		PageSize: pageSize,
	}
}

// Offset 计算偏移量
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Paginate 分页查询
func Paginate(p *Pagination) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.PageSize)
	}
}

// BaseRepo 基础仓储实现
type BaseRepo struct {
	db *gorm.DB
}

// GetDB 获取数据库实例
func (r *BaseRepo) GetDB() *gorm.DB {
	return r.db
}

// conn 绑定请求上下文的会话
func (r *BaseRepo) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// queryErr 将查询错误转换为应用错误，记录不存在时使用 notFound 错误码
func queryErr(err error, notFound apperrors.ErrorCode, details string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.New(notFound, details)
	}
	if code, ok := ctxErrCode(err); ok {
		return apperrors.Wrap(err, code, details)
	}
	return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, details)
}

// writeErr 将写入错误转换为应用错误
func writeErr(err error, code apperrors.ErrorCode, details string) error {
	if err == nil {
		return nil
	}
	if code, ok := ctxErrCode(err); ok {
		return apperrors.Wrap(err, code, details)
	}
	return apperrors.Wrap(err, code, details)
}

// ctxErrCode 上下文超时或取消对应的错误码
func ctxErrCode(err error) (apperrors.ErrorCode, bool) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.ErrTimeout, true
	case errors.Is(err, context.Canceled):
		return apperrors.ErrCanceled, true
	default:
		return 0, false
	}
}
