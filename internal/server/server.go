package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/applygate/applygate/internal/application"
	applicationdomain "github.com/applygate/applygate/internal/application/domain"
	"github.com/applygate/applygate/internal/config"
	"github.com/applygate/applygate/internal/creditpackage"
	creditpackagedomain "github.com/applygate/applygate/internal/creditpackage/domain"
	"github.com/applygate/applygate/internal/entitlement"
	entitlementdomain "github.com/applygate/applygate/internal/entitlement/domain"
	"github.com/applygate/applygate/internal/events"
	"github.com/applygate/applygate/internal/gating"
	"github.com/applygate/applygate/internal/lead"
	leaddomain "github.com/applygate/applygate/internal/lead/domain"
	obsmetrics "github.com/applygate/applygate/internal/observability/metrics"
	"github.com/applygate/applygate/internal/payment"
	paymentdomain "github.com/applygate/applygate/internal/payment/domain"
	"github.com/applygate/applygate/internal/ratelimit"
	"github.com/applygate/applygate/internal/referral"
	referraldomain "github.com/applygate/applygate/internal/referral/domain"
	"github.com/applygate/applygate/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	events.Module,
	obsmetrics.Module,
	creditpackage.Module,
	entitlement.Module,
	payment.Module,
	gating.Module,
	referral.Module,
	application.Module,
	lead.Module,
	ratelimit.Module,
	scheduler.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine         *gin.Engine
	log            *zap.Logger
	cfg            config.Config
	db             *gorm.DB
	genID          *snowflake.Node
	packageSvc     creditpackagedomain.Service
	paymentSvc     paymentdomain.Service
	entitlementSvc entitlementdomain.Service
	applicationSvc applicationdomain.Service
	leadSvc        leaddomain.Service
	referralSvc    referraldomain.Service
	verifyLimiter  *ratelimit.VerifyLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Log            *zap.Logger
	Cfg            config.Config
	DB             *gorm.DB
	GenID          *snowflake.Node
	PackageSvc     creditpackagedomain.Service
	PaymentSvc     paymentdomain.Service
	EntitlementSvc entitlementdomain.Service
	ApplicationSvc applicationdomain.Service
	LeadSvc        leaddomain.Service
	ReferralSvc    referraldomain.Service
	VerifyLimiter  *ratelimit.VerifyLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		log:            p.Log.Named("http.server"),
		cfg:            p.Cfg,
		db:             p.DB,
		genID:          p.GenID,
		packageSvc:     p.PackageSvc,
		paymentSvc:     p.PaymentSvc,
		entitlementSvc: p.EntitlementSvc,
		applicationSvc: p.ApplicationSvc,
		leadSvc:        p.LeadSvc,
		referralSvc:    p.ReferralSvc,
		verifyLimiter:  p.VerifyLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/packages", s.ListPackages)

	api.POST("/payments/verify", s.VerifyPayment)
	api.GET("/credits", s.ListCredits)

	api.POST("/applications", s.SubmitApplication)
	api.GET("/applications", s.ListApplications)

	api.POST("/leads/:id/assign", s.AssignLead)
	api.GET("/leads", s.ListLeadAssignments)

	api.POST("/referrals", s.CreateReferral)
	api.GET("/referrals/balance", s.ReferralBalance)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.POST("/packages", s.CreatePackage)
	admin.GET("/packages", s.ListPackages)
	admin.GET("/packages/:id", s.GetPackage)
	admin.POST("/packages/:id/deactivate", s.DeactivatePackage)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
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
