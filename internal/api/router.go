package api

import (
	"github.com/mspfin/billing-engine/internal/api/cron"
	v1 "github.com/mspfin/billing-engine/internal/api/v1"
	"github.com/mspfin/billing-engine/internal/config"
	"github.com/mspfin/billing-engine/internal/logger"
	"github.com/mspfin/billing-engine/internal/rest/middleware"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health      *v1.HealthHandler
	Calculation *v1.CalculationHandler
	Invoice     *v1.InvoiceHandler
	Contract    *v1.ContractHandler
	Recurring   *v1.RecurringInvoiceHandler
	Payment     *v1.PaymentHandler
	TaxRate     *v1.TaxRateHandler

	CronRecurring *cron.RecurringInvoiceHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, log *logger.Logger) *gin.Engine {
	if cfg.Deployment.Mode != types.ModeLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.SentryMiddleware(cfg),
		middleware.ErrorHandler(log),
	)

	router.GET("/health", handlers.Health.Health)

	v1Router := router.Group("/v1")
	v1Router.Use(middleware.CompanyMiddleware, middleware.SentryCompanyTags)
	registerV1Routes(v1Router, handlers)

	// triggered by an external scheduler, runs for every company
	cronGroup := router.Group("/cron")
	{
		cronGroup.POST("/recurring-invoices/process-due", handlers.CronRecurring.ProcessAllDue)
	}

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	calculate := router.Group("/calculate")
	{
		calculate.POST("/invoice-totals", handlers.Calculation.InvoiceTotals)
		calculate.POST("/tax", handlers.Calculation.Tax)
		calculate.POST("/proration", handlers.Calculation.Proration)
		calculate.POST("/contract-billing", handlers.Calculation.ContractBilling)
	}

	invoices := router.Group("/invoices")
	{
		invoices.POST("", handlers.Invoice.CreateInvoice)
		invoices.GET("", handlers.Invoice.ListInvoices)
		invoices.GET("/:id", handlers.Invoice.GetInvoice)
		invoices.POST("/:id/items", handlers.Invoice.AddItem)
		invoices.PUT("/:id/items/:item_id", handlers.Invoice.UpdateItem)
		invoices.DELETE("/:id/items/:item_id", handlers.Invoice.RemoveItem)
		invoices.PUT("/:id/discount", handlers.Invoice.SetDiscount)
		invoices.POST("/:id/recalculate", handlers.Invoice.Recalculate)
	}

	contracts := router.Group("/contracts")
	{
		contracts.POST("", handlers.Contract.CreateContract)
		contracts.GET("", handlers.Contract.ListContracts)
		contracts.GET("/:id", handlers.Contract.GetContract)
		contracts.PUT("/:id", handlers.Contract.UpdateContract)
		contracts.POST("/:id/archive", handlers.Contract.ArchiveContract)
		contracts.POST("/:id/billing", handlers.Contract.CalculateBilling)
		contracts.GET("/:id/annual-value", handlers.Contract.AnnualValue)
	}

	recurring := router.Group("/recurring-invoices")
	{
		recurring.POST("", handlers.Recurring.CreateRecurringInvoice)
		recurring.GET("", handlers.Recurring.ListRecurringInvoices)
		recurring.POST("/process-due", handlers.Recurring.ProcessDue)
		recurring.GET("/:id", handlers.Recurring.GetRecurringInvoice)
		recurring.POST("/:id/advance", handlers.Recurring.AdvanceRecurringCycle)
		recurring.POST("/:id/cancel", handlers.Recurring.CancelRecurringInvoice)
	}

	payments := router.Group("/payments")
	{
		payments.POST("", handlers.Payment.ApplyPayment)
		payments.GET("", handlers.Payment.ListPayments)
		payments.POST("/allocate", handlers.Payment.AllocatePayment)
		payments.GET("/:id", handlers.Payment.GetPayment)
		payments.POST("/:id/refund", handlers.Payment.ProcessRefund)
	}

	router.GET("/clients/:id/balance", handlers.Payment.GetBalance)

	taxRates := router.Group("/tax-rates")
	{
		taxRates.POST("", handlers.TaxRate.CreateTaxRate)
		taxRates.GET("", handlers.TaxRate.ListTaxRates)
		taxRates.GET("/:id", handlers.TaxRate.GetTaxRate)
		taxRates.DELETE("/:id", handlers.TaxRate.DeleteTaxRate)
	}
}
