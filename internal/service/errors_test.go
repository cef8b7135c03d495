package service

import (
	"errors"
	"fmt"
	"testing"

	"coinledger/internal/repository"

	"github.com/stretchr/testify/assert"
)

func TestTranslateError(t *testing.T) {
	cases := []struct {
		in   error
		want error
	}{
		{repository.ErrBalanceNotEnough, ErrInsufficientBalance},
		{fmt.Errorf("wrap: %w", repository.ErrAccountNotFound), ErrNotFound},
		{repository.ErrOrderNotFound, ErrNotFound},
		{repository.ErrSubjectNotFound, ErrNotFound},
		{repository.ErrSubjectResolved, ErrAlreadyResolved},
		{repository.ErrOrderStatusInvalid, ErrConflict},
		{repository.ErrOrderStatusInvalid, ErrOrderStatus},
		{ErrSelfTransfer, ErrInvalidInput},
		{errors.New("database is locked"), ErrTransient},
	}
	for _, tc := range cases {
		assert.ErrorIs(t, translateError(tc.in, "测试"), tc.want, tc.in.Error())
	}
	assert.NoError(t, translateError(nil, "测试"))
}
