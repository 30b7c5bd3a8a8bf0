package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	err = New(ErrNoLevelAvailable, "难度: 4")
	suite.Equal("没有可用的关卡", err.Message)
	suite.Equal("难度: 4", err.Details)

	// 多个详情
	err = New(ErrLedgerWrite, "assignLevel", "game: 42", "level: 7")
	suite.Equal("assignLevel; game: 42; level: 7", err.Details)
}

// 测试未知错误码
func (suite *ErrorsTestSuite) TestNewUnknownCode() {
	err := New(ErrorCode(9999))
	suite.Equal("未知错误", err.Message)
}

// 测试格式化错误创建
func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrInvalidLevel, "难度 %d 超出范围", 11)
	suite.Equal(ErrInvalidLevel, err.Code)
	suite.Equal("难度 11 超出范围", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	originalErr := errors.New("connection reset")
	wrappedErr := Wrap(originalErr, ErrDatabaseQuery)
	suite.Equal(ErrDatabaseQuery, wrappedErr.Code)
	suite.Equal("connection reset", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	suite.Nil(Wrap(nil, ErrUnknown))

	// 已有AppError保留原始错误码
	appErr := New(ErrNoLevelAvailable, "难度: 3")
	wrappedAppErr := Wrap(appErr, ErrDatabaseQuery, "选择关卡")
	suite.Equal(ErrNoLevelAvailable, wrappedAppErr.Code)
	suite.Contains(wrappedAppErr.Details, "选择关卡")
}

// 测试格式化错误包装
func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("nonce too low")
	wrappedErr := Wrapf(originalErr, ErrLedgerWrite, "%s 提交失败", "updateInteraction")
	suite.Equal(ErrLedgerWrite, wrappedErr.Code)
	suite.Equal("updateInteraction 提交失败: nonce too low", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
}

// 测试错误码判断，包括fmt.Errorf包装后的错误
func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrLedgerWrite)
	suite.True(Is(err, ErrLedgerWrite))
	suite.False(Is(err, ErrNotFound))
	suite.False(Is(nil, ErrLedgerWrite))
	suite.False(Is(errors.New("标准错误"), ErrUnknown))

	wrapped := fmt.Errorf("处理交互失败: %w", err)
	suite.True(Is(wrapped, ErrLedgerWrite))
}

// 测试获取错误码
func (suite *ErrorsTestSuite) TestGetCode() {
	suite.Equal(ErrLedgerRevert, GetCode(New(ErrLedgerRevert)))
	suite.Equal(ErrUnknown, GetCode(errors.New("标准错误")))
	suite.Equal(ErrorCode(0), GetCode(nil))
	suite.Equal(ErrContentStore, GetCode(fmt.Errorf("读取内容: %w", New(ErrContentStore))))
}

// 测试错误消息
func (suite *ErrorsTestSuite) TestError() {
	err := &AppError{
		Code:    ErrNotFound,
		Message: "资源未找到",
	}
	suite.Equal("[1002] 资源未找到", err.Error())

	err.Details = "游戏ID: 42"
	suite.Equal("[1002] 资源未找到: 游戏ID: 42", err.Error())
}

// 测试Unwrap
func (suite *ErrorsTestSuite) TestUnwrap() {
	originalErr := errors.New("原始错误")
	wrappedErr := Wrap(originalErr, ErrUnknown)
	suite.Equal(originalErr, wrappedErr.Unwrap())
	suite.True(errors.Is(wrappedErr, originalErr))
}

// 测试WithDetails和WithCause
func (suite *ErrorsTestSuite) TestWithDetailsAndCause() {
	err := New(ErrOracleMalformed).WithDetails("缺少passed字段")
	suite.Equal("缺少passed字段", err.Details)

	cause := errors.New("unexpected EOF")
	err = New(ErrOracleMalformed).WithCause(cause)
	suite.Equal("unexpected EOF", err.Details)
	suite.Equal(cause, err.Cause)
}

// 测试调用栈
func (suite *ErrorsTestSuite) TestStack() {
	err := New(ErrUnknown)
	suite.NotEmpty(err.Stack)
	suite.NotEmpty(err.GetStack())
	suite.NotContains(err.Stack[0].Function, "internal/errors.New")
}

// 测试HTTP状态码
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrInvalidParam, 400},
		{ErrNotFound, 404},
		{ErrGameNotFound, 404},
		{ErrNoAssignedLevel, 404},
		{ErrTimeout, 408},
		{ErrDatabaseQuery, 503},
		{ErrContentStore, 503},
		{ErrLedgerWrite, 500},
	}

	for _, tt := range tests {
		suite.Equal(tt.expected, New(tt.code).HTTPStatus(), "code %d", tt.code)
	}
}

// 测试可重试判断
func (suite *ErrorsTestSuite) TestIsRetryable() {
	suite.True(IsRetryable(New(ErrLedgerWrite)))
	suite.True(IsRetryable(New(ErrDatabaseInsert)))
	suite.True(IsRetryable(New(ErrContentStore)))
	suite.True(IsRetryable(fmt.Errorf("x: %w", New(ErrTimeout))))
	suite.True(IsRetryable(errors.New("未分类错误")))
	suite.True(IsRetryable(New(ErrCanceled)))

	suite.False(IsRetryable(nil))
	suite.False(IsRetryable(New(ErrNoLevelAvailable)))
	suite.False(IsRetryable(New(ErrLedgerRevert)))
	suite.False(IsRetryable(New(ErrInvalidLevel)))
}

// 测试严重错误判断
func (suite *ErrorsTestSuite) TestIsCritical() {
	suite.True(IsCritical(New(ErrDatabaseConnect)))
	suite.True(IsCritical(New(ErrLedgerConnect)))
	suite.False(IsCritical(New(ErrLedgerWrite)))
	suite.False(IsCritical(nil))
}

// 测试错误响应
func (suite *ErrorsTestSuite) TestNewErrorResponse() {
	resp := NewErrorResponse(New(ErrGameNotFound))
	suite.False(resp.Success)
	suite.Equal(ErrGameNotFound, resp.Error.Code)
	suite.Positive(resp.Timestamp)
}

// 运行测试套件
func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
