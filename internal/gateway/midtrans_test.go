package gateway

import (
	"crypto/sha512"
	"encoding/hex"
	"testing"
	"time"

	"github.com/midtrans/midtrans-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-billing-api/internal/models"
	"github.com/noah-isme/lms-billing-api/pkg/config"
)

func TestVerifySignature(t *testing.T) {
	g := NewMidtrans(config.GatewayConfig{ServerKey: "server-key"}, nil)

	status := &PaymentStatus{
		OrderID:     "order-1",
		StatusCode:  "200",
		GrossAmount: "2500.00",
	}
	sum := sha512.Sum512([]byte("order-1" + "200" + "2500.00" + "server-key"))
	status.SignatureKey = hex.EncodeToString(sum[:])

	assert.True(t, g.VerifySignature(status))

	status.SignatureKey = "tampered"
	assert.False(t, g.VerifySignature(status))

	assert.False(t, g.VerifySignature(nil))
}

func TestConfiguredTimeoutBoundsProviderCalls(t *testing.T) {
	g := NewMidtrans(config.GatewayConfig{ServerKey: "server-key", Timeout: 7 * time.Second}, nil)

	snapClient, ok := g.snap.HttpClient.(*midtrans.HttpClientImplementation)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, snapClient.HttpClient.Timeout)

	coreClient, ok := g.core.HttpClient.(*midtrans.HttpClientImplementation)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, coreClient.HttpClient.Timeout)
}

func TestOrderAmountChargedInMinorUnits(t *testing.T) {
	param := snapRequest(OrderRequest{
		OrderID:  "order-1",
		Amount:   833.33,
		ItemID:   "course-1",
		ItemName: "Go Fundamentals",
	})

	assert.Equal(t, int64(83333), param.TransactionDetails.GrossAmt)
	assert.Equal(t, param.TransactionDetails.GrossAmt, (*param.Items)[0].Price)
}

func TestLedgerStatusMapping(t *testing.T) {
	cases := map[string]models.PaymentStatus{
		"settlement": models.PaymentStatusCompleted,
		"capture":    models.PaymentStatusCompleted,
		"pending":    models.PaymentStatusPending,
		"deny":       models.PaymentStatusFailed,
		"failure":    models.PaymentStatusFailed,
		"expire":     models.PaymentStatusExpired,
		"cancel":     models.PaymentStatusCancelled,
	}
	for transactionStatus, want := range cases {
		got := LedgerStatus(&PaymentStatus{TransactionStatus: transactionStatus})
		assert.Equal(t, want, got, transactionStatus)
	}
	assert.Equal(t, models.PaymentStatusPending, LedgerStatus(nil))
}

func TestSettled(t *testing.T) {
	assert.True(t, Settled(&PaymentStatus{TransactionStatus: "settlement"}))
	assert.True(t, Settled(&PaymentStatus{TransactionStatus: "capture"}))
	assert.False(t, Settled(&PaymentStatus{TransactionStatus: "pending"}))
	assert.False(t, Settled(nil))
}
