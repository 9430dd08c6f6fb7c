package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/applygate/applygate/internal/config"
	creditpackagedomain "github.com/applygate/applygate/internal/creditpackage/domain"
	"github.com/applygate/applygate/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	Provider   domain.ProviderClient
	PackageSvc creditpackagedomain.Service
}

// Service is a pure validation gate: its only side effect is the read
// against the payment provider.
type Service struct {
	log        *zap.Logger
	secret     []byte
	provider   domain.ProviderClient
	packageSvc creditpackagedomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("payment.service"),
		secret:     []byte(p.Cfg.Payment.KeySecret),
		provider:   p.Provider,
		packageSvc: p.PackageSvc,
	}
}

func (s *Service) Verify(ctx context.Context, req domain.VerifyRequest) (domain.VerifiedPayment, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.VerifiedPayment{}, domain.ErrInvalidOrder
	}
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return domain.VerifiedPayment{}, domain.ErrInvalidPaymentID
	}
	if req.HolderID == 0 {
		return domain.VerifiedPayment{}, domain.ErrInvalidHolder
	}

	if !s.signatureValid(orderID, paymentID, req.Signature) {
		s.log.Warn("payment signature mismatch", zap.String("order_id", orderID))
		return domain.VerifiedPayment{}, domain.ErrInvalidSignature
	}

	pkg, err := s.packageSvc.GetByID(ctx, creditpackagedomain.GetPackageRequest{ID: req.PackageID.String()})
	if err != nil {
		return domain.VerifiedPayment{}, err
	}
	if !pkg.Active {
		return domain.VerifiedPayment{}, creditpackagedomain.ErrPackageInactive
	}

	// The canonical price lives in the catalog; the client-supplied amount
	// only has to agree with it.
	if req.ClaimedAmount != pkg.PriceMinorUnits {
		return domain.VerifiedPayment{}, domain.ErrAmountMismatch
	}

	order, err := s.provider.FetchOrder(ctx, orderID)
	if err != nil {
		return domain.VerifiedPayment{}, err
	}
	if order.Status != domain.OrderStatusPaid {
		return domain.VerifiedPayment{}, domain.ErrPaymentNotCompleted
	}
	if order.AmountMinorUnits != pkg.PriceMinorUnits {
		return domain.VerifiedPayment{}, domain.ErrAmountMismatch
	}

	return domain.VerifiedPayment{
		ProviderOrderID:   orderID,
		ProviderPaymentID: paymentID,
		HolderID:          req.HolderID,
		PackageID:         pkg.ID,
		AmountMinorUnits:  order.AmountMinorUnits,
	}, nil
}

func (s *Service) signatureValid(orderID, paymentID, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" || len(s.secret) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
