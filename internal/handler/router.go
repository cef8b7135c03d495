package handler

import (
	"coinledger/internal/service"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(svc *service.Services) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(svc)

	api := r.Group("/api/v1")
	{
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/transactions", h.ListTransactions)
			account.GET("/batches", h.ListBatches)
			account.POST("/spend", h.Spend)
			account.POST("/grant", h.Grant)
			account.POST("/transfer", h.Transfer)
			account.POST("/checkin", h.CheckIn)
		}

		recharge := api.Group("/recharge")
		{
			recharge.POST("/create", h.CreateRecharge)
			recharge.POST("/confirm", h.ConfirmRecharge)
			recharge.GET("/detail", h.GetRecharge)
			recharge.GET("/list", h.ListRecharges)
		}

		relation := api.Group("/relation")
		{
			relation.POST("/toggle", h.Toggle)
			relation.GET("/status", h.RelationStatus)
			relation.GET("/count", h.RelationCount)
		}

		bounty := api.Group("/bounty")
		{
			bounty.POST("/create", h.CreateBounty)
			bounty.POST("/adopt", h.Adopt)
			bounty.GET("/detail", h.GetBounty)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
