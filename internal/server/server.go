package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/copiflow/copiflow/internal/config"
	"github.com/copiflow/copiflow/internal/customer"
	customerdomain "github.com/copiflow/copiflow/internal/customer/domain"
	"github.com/copiflow/copiflow/internal/device"
	devicedomain "github.com/copiflow/copiflow/internal/device/domain"
	"github.com/copiflow/copiflow/internal/events"
	"github.com/copiflow/copiflow/internal/invoice"
	invoicedomain "github.com/copiflow/copiflow/internal/invoice/domain"
	"github.com/copiflow/copiflow/internal/locks"
	obsmetrics "github.com/copiflow/copiflow/internal/observability/metrics"
	"github.com/copiflow/copiflow/internal/product"
	productdomain "github.com/copiflow/copiflow/internal/product/domain"
	"github.com/copiflow/copiflow/internal/reading"
	readingdomain "github.com/copiflow/copiflow/internal/reading/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(obsmetrics.NewHTTPMetrics),
	fx.Provide(registerGin),
	events.Module,
	locks.Module,
	customer.Module,
	device.Module,
	product.Module,
	reading.Module,
	invoice.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	customerSvc customerdomain.Service
	deviceSvc   devicedomain.Service
	productSvc  productdomain.Service
	readingSvc  readingdomain.Service
	invoiceSvc  invoicedomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	CustomerSvc customerdomain.Service
	DeviceSvc   devicedomain.Service
	ProductSvc  productdomain.Service
	ReadingSvc  readingdomain.Service
	InvoiceSvc  invoicedomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		customerSvc: p.CustomerSvc,
		deviceSvc:   p.DeviceSvc,
		productSvc:  p.ProductSvc,
		readingSvc:  p.ReadingSvc,
		invoiceSvc:  p.InvoiceSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	api.POST("/customers", s.CreateCustomer)
	api.GET("/customers", s.ListCustomers)
	api.GET("/customers/:id", s.GetCustomerByID)

	api.POST("/devices", s.CreateDevice)
	api.GET("/devices", s.ListDevices)
	api.GET("/devices/:id", s.GetDeviceByID)
	api.PATCH("/devices/:id", s.UpdateDevice)

	api.POST("/products", s.UpsertProduct)
	api.GET("/products", s.ListProducts)

	api.POST("/readings", s.CreateReading)
	api.GET("/readings", s.ListReadings)
	api.GET("/readings/:id", s.GetReadingByID)
	api.PATCH("/readings/:id", s.UpdateReading)
	api.POST("/readings/:id/confirm", s.ConfirmReading)
	api.POST("/readings/:id/revert", s.RevertReading)
	api.POST("/readings/:id/cancel", s.CancelReading)
	api.POST("/readings/:id/invoice", s.InvoiceReading)

	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoiceByID)
}
