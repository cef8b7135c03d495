package service

import (
	"coinledger/internal/config"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Services 汇总所有业务服务，HTTP 层和后台任务共用同一组实例
type Services struct {
	Account   *AccountService
	Spend     *SpendService
	Transfer  *TransferService
	Escrow    *EscrowService
	Toggle    *ToggleService
	Order     *OrderService
	Checkin   *CheckinService
	Reconcile *ReconcileService
}

func NewServices(db *gorm.DB, rdb *redis.Client, cfg *config.Config) (*Services, error) {
	orders, err := NewOrderService(db, cfg)
	if err != nil {
		return nil, err
	}

	accounts := NewAccountService(db, cfg)
	transfers := NewTransferService(db, rdb, cfg)
	return &Services{
		Account:   accounts,
		Spend:     NewSpendService(db, rdb, cfg, accounts),
		Transfer:  transfers,
		Escrow:    NewEscrowService(db, rdb, cfg, transfers),
		Toggle:    NewToggleService(db),
		Order:     orders,
		Checkin:   NewCheckinService(db, rdb, cfg, accounts),
		Reconcile: NewReconcileService(db),
	}, nil
}
