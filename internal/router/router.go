package router

import (
	"net/http"

	"billflow/internal/app"
	"billflow/internal/handler"
	"billflow/internal/middleware"
	"billflow/internal/ws"

	"github.com/gin-gonic/gin"
)

// Limiters are the per-IP limiters for general API traffic and gateway webhooks.
type Limiters struct {
	API     middleware.Limiter
	Webhook middleware.Limiter
}

func Setup(a *app.App, limits Limiters) *gin.Engine {
	cfg := a.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(a.Logger))

	paymentHandler := handler.NewPaymentHandler(a.Payments)
	webhookHandler := handler.NewPaystackWebhookHandler(a.Webhooks, a.Logger)
	identityHandler := handler.NewIdentityHandler(a.Identity)
	payoutHandler := handler.NewPayoutHandler(a.Payouts)
	notificationHandler := handler.NewNotificationHandler(a.Notifications)
	reconHandler := handler.NewReconciliationHandler(a.Reconciliation, a.Recovery, a.Payments,
		cfg.Reconciliation.DefaultDays, cfg.Reconciliation.Workers)

	authMw := middleware.AuthRequired(&cfg.JWT)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "gateway_configured": a.Gateway.Configured()})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/webhooks/paystack", middleware.RateLimit(limits.Webhook), webhookHandler.Handle)

		user := api.Group("")
		user.Use(middleware.RateLimit(limits.API), authMw)
		{
			user.POST("/payments/initialize", paymentHandler.Initialize)
			user.GET("/payments/:reference", paymentHandler.Get)
			user.GET("/invoices/:id/payments", paymentHandler.ListForInvoice)
			user.GET("/banks", payoutHandler.ListBanks)
		}

		me := api.Group("/me")
		me.Use(middleware.RateLimit(limits.API), authMw)
		{
			me.POST("/identity", identityHandler.Verify)
			me.GET("/identity", identityHandler.Status)
			me.POST("/identity/document", identityHandler.UploadDocument)
			me.GET("/payout-eligibility", identityHandler.PayoutEligibility)
			me.GET("/payout-account", payoutHandler.Get)
			me.POST("/payout-account", payoutHandler.Create)
			me.PUT("/payout-account", payoutHandler.Update)
			me.GET("/notifications", notificationHandler.List)
			me.PUT("/notifications/:id/read", notificationHandler.MarkRead)
			me.POST("/fcm-token", notificationHandler.RegisterFCMToken)
		}

		admin := api.Group("/admin")
		admin.Use(authMw, middleware.AdminRequired())
		{
			admin.POST("/reconcile", reconHandler.ReconcileBatch)
			admin.GET("/reconciliations/summary", reconHandler.Summary)
			admin.POST("/payments/:reference/reconcile", reconHandler.ReconcileOne)
			admin.GET("/payments/:reference/reconciliation", reconHandler.Get)
			admin.POST("/payments/:reference/cancel", reconHandler.Cancel)
			admin.POST("/recoveries/process", reconHandler.ProcessRecoveries)
		}
	}

	if a.Hub != nil {
		r.GET("/ws/payments", ws.UpgradePaymentsWS(&cfg.JWT, a.Hub))
	}
	return r
}
