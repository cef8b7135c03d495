package handler

import (
	"errors"

	"coinledger/internal/service"
	"coinledger/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError 把业务错误分类映射为响应码
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, service.ErrAlreadyResolved):
		response.BusinessError(c, response.CodeAlreadyResolved, err.Error())
	case errors.Is(err, service.ErrAlreadyCheckedIn):
		response.BusinessError(c, response.CodeAlreadyCheckedIn, err.Error())
	case errors.Is(err, service.ErrOrderStatus):
		response.BusinessError(c, response.CodeOrderStatus, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrNotAuthorized):
		response.Error(c, response.CodeForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound):
		response.Error(c, response.CodeNotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		response.Error(c, response.CodeConflict, err.Error())
	case errors.Is(err, service.ErrTransient):
		response.Error(c, response.CodeRetryable, err.Error())
	default:
		zap.L().Error("未分类的错误", zap.String("path", c.FullPath()), zap.Error(err))
		response.ServerError(c, "服务器内部错误")
	}
}
