package service

import (
	"errors"
	"fmt"

	"coinledger/internal/repository"
)

// 错误分类，调用方统一使用 errors.Is 判断
var (
	ErrInvalidInput        = errors.New("参数不合法")
	ErrInsufficientBalance = errors.New("余额不足")
	ErrAlreadyResolved     = errors.New("悬赏已被采纳")
	ErrNotAuthorized       = errors.New("无权操作")
	ErrNotFound            = errors.New("记录不存在")
	ErrConflict            = errors.New("数据冲突")
	ErrTransient           = errors.New("系统繁忙，请使用相同的幂等键重试")
)

// 细分错误，包装上面的分类
var (
	ErrSelfTransfer      = fmt.Errorf("%w: 不能给自己转账", ErrInvalidInput)
	ErrNonPositiveAmount = fmt.Errorf("%w: 金额必须大于0", ErrInvalidInput)
	ErrNegativeAmount    = fmt.Errorf("%w: 金额不能为负数", ErrInvalidInput)
	ErrSelfFollow        = fmt.Errorf("%w: 不能关注自己", ErrInvalidInput)
	ErrAccountNotFound   = fmt.Errorf("%w: 账户不存在", ErrNotFound)
	ErrAlreadyCheckedIn  = fmt.Errorf("%w: 今日已签到", ErrConflict)
	ErrOrderStatus       = fmt.Errorf("%w: 订单状态不允许该操作", ErrConflict)
)

// invalidf 构造参数错误
func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// translateError 把仓储层错误映射为错误分类；已分类的错误原样返回，
// 其余（数据库、网络、提交失败）一律视为可重试的暂时性错误
func translateError(err error, action string) error {
	switch {
	case err == nil:
		return nil
	case isClassified(err):
		return err
	case errors.Is(err, repository.ErrBalanceNotEnough):
		return ErrInsufficientBalance
	case errors.Is(err, repository.ErrAccountNotFound):
		return ErrAccountNotFound
	case errors.Is(err, repository.ErrOrderNotFound), errors.Is(err, repository.ErrSubjectNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrSubjectResolved):
		return ErrAlreadyResolved
	case errors.Is(err, repository.ErrOrderStatusInvalid):
		return fmt.Errorf("%w: %v", ErrOrderStatus, err)
	default:
		return fmt.Errorf("%s失败: %w (%v)", action, ErrTransient, err)
	}
}

func isClassified(err error) bool {
	for _, target := range []error{
		ErrInvalidInput, ErrInsufficientBalance, ErrAlreadyResolved,
		ErrNotAuthorized, ErrNotFound, ErrConflict, ErrTransient,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
