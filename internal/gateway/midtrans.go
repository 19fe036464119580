package gateway

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-billing-api/internal/models"
	"github.com/noah-isme/lms-billing-api/pkg/config"
	"github.com/noah-isme/lms-billing-api/pkg/money"
)

// OrderRequest describes the checkout order to open at the provider.
type OrderRequest struct {
	OrderID       string
	Amount        float64
	ItemID        string
	ItemName      string
	CustomerName  string
	CustomerEmail string
}

// Order is an open checkout session at the provider.
type Order struct {
	OrderID     string
	Token       string
	RedirectURL string
}

// PaymentStatus is the provider's view of a transaction.
type PaymentStatus struct {
	OrderID           string
	TransactionID     string
	TransactionStatus string
	StatusCode        string
	GrossAmount       string
	PaymentType       string
	SignatureKey      string
}

// Gateway abstracts the payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	FetchPayment(ctx context.Context, orderID string) (*PaymentStatus, error)
	CancelOrder(ctx context.Context, orderID string) error
	VerifySignature(status *PaymentStatus) bool
}

// Settled reports whether the provider considers the transaction paid.
func Settled(status *PaymentStatus) bool {
	return status != nil && (status.TransactionStatus == "settlement" || status.TransactionStatus == "capture")
}

// LedgerStatus maps a provider transaction status onto the payment ledger.
func LedgerStatus(status *PaymentStatus) models.PaymentStatus {
	if status == nil {
		return models.PaymentStatusPending
	}
	switch status.TransactionStatus {
	case "settlement", "capture":
		return models.PaymentStatusCompleted
	case "deny", "failure":
		return models.PaymentStatusFailed
	case "expire":
		return models.PaymentStatusExpired
	case "cancel":
		return models.PaymentStatusCancelled
	default:
		return models.PaymentStatusPending
	}
}

// Midtrans implements Gateway against the Midtrans Snap and Core APIs.
type Midtrans struct {
	snap      snap.Client
	core      coreapi.Client
	serverKey string
	logger    *zap.Logger
}

// NewMidtrans configures Snap and Core API clients from gateway settings.
func NewMidtrans(cfg config.GatewayConfig, logger *zap.Logger) *Midtrans {
	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}

	var s snap.Client
	s.New(cfg.ServerKey, env)

	var c coreapi.Client
	c.New(cfg.ServerKey, env)

	// Replace the library's default HTTP client so provider calls fail
	// within the configured bound instead of hanging on a slow endpoint.
	if cfg.Timeout > 0 {
		httpClient := &midtrans.HttpClientImplementation{
			HttpClient: &http.Client{Timeout: cfg.Timeout},
			Logger:     midtrans.GetDefaultLogger(env),
		}
		s.HttpClient = httpClient
		c.HttpClient = httpClient
	}

	return &Midtrans{snap: s, core: c, serverKey: cfg.ServerKey, logger: logger}
}

// snapRequest maps an order onto the provider's request shape. Amounts are
// charged in minor units so the gateway figure matches the ledger exactly.
func snapRequest(req OrderRequest) *snap.Request {
	gross := money.MinorUnits(req.Amount)
	return &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderID,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.CustomerName,
			Email: req.CustomerEmail,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    req.ItemID,
				Name:  req.ItemName,
				Price: gross,
				Qty:   1,
			},
		},
	}
}

// CreateOrder opens a Snap checkout session for the given order.
func (g *Midtrans) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	param := snapRequest(req)

	resp, err := g.snap.CreateTransaction(param)
	if err != nil {
		return nil, fmt.Errorf("create gateway order %s: %w", req.OrderID, err)
	}

	if g.logger != nil {
		g.logger.Info("gateway order created",
			zap.String("order_id", req.OrderID),
			zap.Int64("gross_amount", param.TransactionDetails.GrossAmt))
	}

	return &Order{OrderID: req.OrderID, Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// FetchPayment queries the provider for the current transaction state.
func (g *Midtrans) FetchPayment(_ context.Context, orderID string) (*PaymentStatus, error) {
	resp, err := g.core.CheckTransaction(orderID)
	if err != nil {
		return nil, fmt.Errorf("check gateway transaction %s: %w", orderID, err)
	}

	return &PaymentStatus{
		OrderID:           resp.OrderID,
		TransactionID:     resp.TransactionID,
		TransactionStatus: resp.TransactionStatus,
		StatusCode:        resp.StatusCode,
		GrossAmount:       resp.GrossAmount,
		PaymentType:       resp.PaymentType,
		SignatureKey:      resp.SignatureKey,
	}, nil
}

// CancelOrder voids an open order at the provider.
func (g *Midtrans) CancelOrder(_ context.Context, orderID string) error {
	if _, err := g.core.CancelTransaction(orderID); err != nil {
		return fmt.Errorf("cancel gateway order %s: %w", orderID, err)
	}
	return nil
}

// VerifySignature checks the SHA512 notification signature
// over order id, status code, gross amount and the server key.
func (g *Midtrans) VerifySignature(status *PaymentStatus) bool {
	if status == nil || status.SignatureKey == "" {
		return false
	}
	sum := sha512.Sum512([]byte(status.OrderID + status.StatusCode + status.GrossAmount + g.serverKey))
	return hex.EncodeToString(sum[:]) == status.SignatureKey
}
