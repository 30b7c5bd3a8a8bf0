package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/gamemaster/internal/errors"
	"github.com/wfunc/gamemaster/internal/repository"
)

// ListResponse 分页列表响应
type ListResponse struct {
	Records  interface{} `json:"records"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// respondError 输出统一错误响应，不对外暴露调用栈
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}

	out := *appErr
	out.Stack = nil
	out.Cause = nil
	_ = c.Error(err)
	c.JSON(out.HTTPStatus(), apperrors.NewErrorResponse(&out))
}

// parseGameID 解析路径中的游戏ID
func parseGameID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, apperrors.New(apperrors.ErrInvalidParam, "无效的游戏ID: "+c.Param("id")))
		return 0, false
	}
	return id, true
}

// parsePagination 解析分页参数
func parsePagination(c *gin.Context) *repository.Pagination {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return repository.NewPagination(page, pageSize)
}

// listResponse 构造分页列表响应
func listResponse(c *gin.Context, records interface{}, p *repository.Pagination) {
	c.JSON(http.StatusOK, ListResponse{
		Records:  records,
		Total:    p.Total,
		Page:     p.Page,
		PageSize: p.PageSize,
	})
}
