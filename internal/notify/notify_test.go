package notify_test

import (
	"context"
	"testing"

	"github.com/Godswillamos0/escrow-api/internal/notify"
	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogNotifierWritesNotification(test *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	notifier := notify.NewLogNotifier(zap.New(core))
	owner, err := ledger.NewOwnerRef("user-1")
	require.NoError(test, err)
	amount, err := ledger.ParseAmount("250")
	require.NoError(test, err)
	reference, err := ledger.NewReferenceCode("TXN-00000000AB")
	require.NoError(test, err)

	err = notifier.Notify(context.Background(), ledger.Notification{
		Kind:      ledger.NotifyWithdrawalRequested,
		OwnerRef:  owner,
		Email:     "user-1@example.com",
		Amount:    amount,
		Reference: reference,
	})
	require.NoError(test, err)

	require.Equal(test, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(test, "notify", entry.LoggerName)
	assert.Equal(test, map[string]interface{}{
		"kind":      "withdrawal_requested",
		"owner_ref": "user-1",
		"email":     "user-1@example.com",
		"amount":    "250.00",
		"reference": "TXN-00000000AB",
	}, entry.ContextMap())
}

func TestLogNotifierOmitsEmptyFields(test *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	notifier := notify.NewLogNotifier(zap.New(core))
	owner, err := ledger.NewOwnerRef("user-2")
	require.NoError(test, err)

	require.NoError(test, notifier.Notify(context.Background(), ledger.Notification{Kind: ledger.NotifyWalletFrozen, OwnerRef: owner}))
	assert.NotContains(test, logs.All()[0].ContextMap(), "amount")
	assert.NotContains(test, logs.All()[0].ContextMap(), "reference")
}
