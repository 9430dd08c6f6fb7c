package payment

import (
	"github.com/applygate/applygate/internal/payment/provider/razorpay"
	"github.com/applygate/applygate/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(razorpay.New),
	fx.Provide(service.New),
)
