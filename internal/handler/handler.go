package handler

import (
	"strconv"
	"time"

	"coinledger/internal/model"
	"coinledger/internal/repository"
	"coinledger/internal/service"
	"coinledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	svc *service.Services
}

func NewHandler(svc *service.Services) *Handler {
	return &Handler{svc: svc}
}

func queryInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return v, true
}

func queryPage(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

// ============================================================
// 账户相关接口
// ============================================================

// GetBalance 查询余额
// GET /api/v1/account/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	balance, err := h.svc.Account.GetBalance(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, balance)
}

// ListTransactions 查询流水
// GET /api/v1/account/transactions?user_id=xxx&balance_type=FREE&op_type=spend&order=desc&page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	page, pageSize := queryPage(c)
	filter := repository.LedgerFilter{
		BalanceType: c.Query("balance_type"),
		OpType:      c.Query("op_type"),
		Desc:        c.Query("order") == "desc",
	}

	entries, total, err := h.svc.Account.ListTransactions(c.Request.Context(), userID, filter, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListBatches 查询可用的免费硬币批次
// GET /api/v1/account/batches?user_id=xxx
func (h *Handler) ListBatches(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	batches, err := h.svc.Account.ListBatches(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": batches})
}

type SpendRequest struct {
	UserID      int64  `json:"user_id" binding:"required"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	AllowFree   *bool  `json:"allow_free"` // 默认 true
	RelatedID   string `json:"related_id"`
}

// Spend 消费硬币
// POST /api/v1/account/spend
func (h *Handler) Spend(c *gin.Context) {
	var req SpendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	allowFree := req.AllowFree == nil || *req.AllowFree

	result, err := h.svc.Spend.Spend(c.Request.Context(), &service.SpendRequest{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Description: req.Description,
		AllowFree:   allowFree,
		RelatedID:   req.RelatedID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

type GrantRequest struct {
	UserID     int64      `json:"user_id" binding:"required"`
	Amount     int64      `json:"amount"`
	ExpireAt   *time.Time `json:"expire_at"`   // 与 expire_days 二选一
	ExpireDays int        `json:"expire_days"` // 从现在起的有效天数
	Reason     string     `json:"reason"`
}

// Grant 发放免费硬币（运营活动）
// POST /api/v1/account/grant
func (h *Handler) Grant(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	var expireAt time.Time
	switch {
	case req.ExpireAt != nil:
		expireAt = *req.ExpireAt
	case req.ExpireDays > 0:
		expireAt = time.Now().AddDate(0, 0, req.ExpireDays)
	default:
		response.ParamError(c, "expire_at 或 expire_days 必填")
		return
	}

	batch, err := h.svc.Account.GrantFreeCredit(c.Request.Context(), &service.GrantRequest{
		UserID:   req.UserID,
		Amount:   req.Amount,
		ExpireAt: expireAt,
		Reason:   req.Reason,
		OpType:   model.OpTypeGrant,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, batch)
}

type TransferRequest struct {
	FromUserID     int64  `json:"from_user_id" binding:"required"`
	ToUserID       int64  `json:"to_user_id" binding:"required"`
	Amount         int64  `json:"amount"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Transfer 转账（打赏、礼物）
// POST /api/v1/account/transfer
//
// 幂等键也可以通过 Idempotency-Key 请求头传入
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	result, err := h.svc.Transfer.Transfer(c.Request.Context(), &service.TransferRequest{
		FromUserID:     req.FromUserID,
		ToUserID:       req.ToUserID,
		Amount:         req.Amount,
		OpType:         model.OpTypeTransfer,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

// CheckIn 每日签到
// POST /api/v1/account/checkin
func (h *Handler) CheckIn(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Checkin.CheckIn(c.Request.Context(), req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 充值相关接口
// ============================================================

type CreateRechargeRequest struct {
	UserID    int64           `json:"user_id" binding:"required"`
	AmountCNY decimal.Decimal `json:"amount_cny"`
	Method    string          `json:"method" binding:"required"`
}

// CreateRecharge 创建充值订单
// POST /api/v1/recharge/create
func (h *Handler) CreateRecharge(c *gin.Context) {
	var req CreateRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.Order.CreateOrder(c.Request.Context(), req.UserID, req.AmountCNY, req.Method)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, order)
}

type ConfirmRechargeRequest struct {
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
	Status         string `json:"status"` // PAID（默认）或 FAILED
}

// ConfirmRecharge 支付网关回调
// POST /api/v1/recharge/confirm
//
// 回调可能重复投递，重复确认返回 duplicate=true，不会重复入账
func (h *Handler) ConfirmRecharge(c *gin.Context) {
	var req ConfirmRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	switch req.Status {
	case "", model.OrderStatusPaid:
		result, err := h.svc.Order.Confirm(c.Request.Context(), req.IdempotencyKey)
		if err != nil {
			writeError(c, err)
			return
		}
		response.Success(c, result)
	case model.OrderStatusFailed:
		order, err := h.svc.Order.MarkFailed(c.Request.Context(), req.IdempotencyKey)
		if err != nil {
			writeError(c, err)
			return
		}
		response.Success(c, order)
	default:
		response.ParamError(c, "status 只能是 PAID 或 FAILED")
	}
}

// GetRecharge 查询订单详情
// GET /api/v1/recharge/detail?order_no=xxx
func (h *Handler) GetRecharge(c *gin.Context) {
	orderNo := c.Query("order_no")
	if orderNo == "" {
		response.ParamError(c, "order_no 参数不能为空")
		return
	}

	order, err := h.svc.Order.GetOrder(c.Request.Context(), orderNo)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, order)
}

// ListRecharges 查询用户充值订单
// GET /api/v1/recharge/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListRecharges(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	page, pageSize := queryPage(c)

	orders, total, err := h.svc.Order.ListUserOrders(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 点赞 / 收藏 / 关注
// ============================================================

type ToggleRequest struct {
	ActorID  int64  `json:"actor_id" binding:"required"`
	TargetID int64  `json:"target_id" binding:"required"`
	Kind     string `json:"kind" binding:"required"`
}

// Toggle 切换关系
// POST /api/v1/relation/toggle
func (h *Handler) Toggle(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	active, err := h.svc.Toggle.Toggle(c.Request.Context(), req.ActorID, req.TargetID, req.Kind)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"active": active})
}

// RelationStatus 查询关系是否存在
// GET /api/v1/relation/status?actor_id=xxx&target_id=xxx&kind=like
func (h *Handler) RelationStatus(c *gin.Context) {
	actorID, ok := queryInt64(c, "actor_id")
	if !ok {
		return
	}
	targetID, ok := queryInt64(c, "target_id")
	if !ok {
		return
	}

	active, err := h.svc.Toggle.IsActive(c.Request.Context(), actorID, targetID, c.Query("kind"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"active": active})
}

// RelationCount 统计目标的点赞 / 收藏 / 关注数
// GET /api/v1/relation/count?target_id=xxx&kind=like
func (h *Handler) RelationCount(c *gin.Context) {
	targetID, ok := queryInt64(c, "target_id")
	if !ok {
		return
	}

	count, err := h.svc.Toggle.Count(c.Request.Context(), targetID, c.Query("kind"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"count": count})
}

// ============================================================
// 悬赏相关接口
// ============================================================

type CreateBountyRequest struct {
	PostID       int64 `json:"post_id" binding:"required"`
	OwnerUserID  int64 `json:"owner_user_id" binding:"required"`
	BountyAmount int64 `json:"bounty_amount"`
}

// CreateBounty 为帖子设置悬赏
// POST /api/v1/bounty/create
func (h *Handler) CreateBounty(c *gin.Context) {
	var req CreateBountyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	subject, err := h.svc.Escrow.CreateSubject(c.Request.Context(), req.PostID, req.OwnerUserID, req.BountyAmount)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, subject)
}

type AdoptRequest struct {
	SubjectID   int64 `json:"subject_id" binding:"required"`
	CallerID    int64 `json:"caller_id" binding:"required"`
	RecipientID int64 `json:"recipient_id" binding:"required"`
	CommentID   int64 `json:"comment_id" binding:"required"`
}

// Adopt 采纳评论并发放悬赏
// POST /api/v1/bounty/adopt
func (h *Handler) Adopt(c *gin.Context) {
	var req AdoptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Escrow.Adopt(c.Request.Context(), &service.AdoptRequest{
		SubjectID:   req.SubjectID,
		CallerID:    req.CallerID,
		RecipientID: req.RecipientID,
		CommentID:   req.CommentID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, result)
}

// GetBounty 查询悬赏
// GET /api/v1/bounty/detail?id=xxx
func (h *Handler) GetBounty(c *gin.Context) {
	id, ok := queryInt64(c, "id")
	if !ok {
		return
	}

	subject, err := h.svc.Escrow.GetSubject(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, subject)
}
