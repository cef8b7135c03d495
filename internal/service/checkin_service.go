package service

import (
	"context"
	"fmt"
	"time"

	"coinledger/internal/config"
	"coinledger/internal/infrastructure/lock"
	"coinledger/internal/model"
	"coinledger/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const checkinDateLayout = "2006-01-02"

// CheckinService 每日签到：赠送一批带有效期的免费硬币，并增加经验值
type CheckinService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	checkinRepo *repository.CheckinRepository
	profileRepo *repository.ProfileRepository
	accounts    *AccountService
	now         func() time.Time
}

func NewCheckinService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, accounts *AccountService) *CheckinService {
	return &CheckinService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		checkinRepo: repository.NewCheckinRepository(db),
		profileRepo: repository.NewProfileRepository(db),
		accounts:    accounts,
		now:         time.Now,
	}
}

type CheckinResult struct {
	Record *model.CheckinRecord `json:"record"`
	Batch  *model.CreditBatch   `json:"batch"`
}

// CheckIn 签到，同一用户每天只能成功一次
func (s *CheckinService) CheckIn(ctx context.Context, userID int64) (*CheckinResult, error) {
	if userID <= 0 {
		return nil, invalidf("user_id 不合法")
	}

	now := s.now()
	date := now.Format(checkinDateLayout)

	existing, err := s.checkinRepo.Get(ctx, userID, date)
	if err != nil {
		return nil, translateError(err, "查询签到")
	}
	if existing != nil {
		return nil, ErrAlreadyCheckedIn
	}

	checkinLock := lock.NewCheckinLock(s.redisClient, userID, date, uuid.NewString())
	ok, err := checkinLock.TryLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if !ok {
		// 同一用户同一天的另一个签到请求正在处理
		return nil, ErrAlreadyCheckedIn
	}
	defer checkinLock.Unlock(context.WithoutCancel(ctx))

	result := &CheckinResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.accounts.grantTx(ctx, tx, &GrantRequest{
			UserID:   userID,
			Amount:   s.cfg.Ledger.CheckinReward,
			ExpireAt: now.AddDate(0, 0, s.cfg.Ledger.CheckinExpireDays),
			Reason:   "每日签到-" + date,
			OpType:   model.OpTypeCheckin,
		})
		if err != nil {
			return err
		}

		record := &model.CheckinRecord{
			UserID:      userID,
			CheckinDate: date,
			BatchID:     batch.ID,
			Reward:      batch.AmountGranted,
		}
		if err := s.checkinRepo.Create(ctx, tx, record); err != nil {
			if repository.IsDuplicateKey(err) {
				return ErrAlreadyCheckedIn
			}
			return err
		}

		result.Record = record
		result.Batch = batch
		return nil
	})
	if err != nil {
		return nil, translateError(err, "签到")
	}

	bestEffort(ctx, "checkin_experience", func(ctx context.Context) error {
		return s.profileRepo.IncrementExperience(ctx, userID, s.cfg.Ledger.CheckinExperience)
	})

	zap.L().Info("签到成功", zap.Int64("user_id", userID), zap.String("date", date), zap.Int64("reward", result.Batch.AmountGranted))
	return result, nil
}
