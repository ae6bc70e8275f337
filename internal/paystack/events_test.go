package paystack_test

import (
	"encoding/hex"
	"testing"

	"github.com/Godswillamos0/escrow-api/internal/paystack"
	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(test *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"TXN-00000000AB"}}`)
	valid := hex.EncodeToString(paystack.Sign(testSecret, body))

	testCases := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		wantErr   bool
	}{
		{name: "valid", secret: testSecret, body: body, signature: valid},
		{name: "uppercase hex", secret: testSecret, body: body, signature: upper(valid)},
		{name: "missing header", secret: testSecret, body: body, signature: "", wantErr: true},
		{name: "not hex", secret: testSecret, body: body, signature: "zz", wantErr: true},
		{name: "tampered body", secret: testSecret, body: append([]byte(" "), body...), signature: valid, wantErr: true},
		{name: "wrong secret", secret: "sk_test_other", body: body, signature: valid, wantErr: true},
		{name: "empty secret", secret: "", body: body, signature: valid, wantErr: true},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			err := paystack.VerifySignature(testCase.secret, testCase.body, testCase.signature)
			if testCase.wantErr {
				assert.ErrorIs(test, err, ledger.ErrSignatureInvalid)
				return
			}
			assert.NoError(test, err)
		})
	}
}

func upper(value string) string {
	out := []byte(value)
	for index, character := range out {
		if character >= 'a' && character <= 'f' {
			out[index] = character - 'a' + 'A'
		}
	}
	return string(out)
}

func TestParseEvent(test *testing.T) {
	testCases := []struct {
		name     string
		body     string
		expected ledger.SettlementEvent
	}{
		{
			name:     "charge success",
			body:     `{"event":"charge.success","data":{"reference":"TXN-00000000AB","amount":50000,"gateway_response":"Successful"}}`,
			expected: ledger.SettlementEvent{Type: ledger.SettlementChargeSuccess, Reference: mustReference(test, "TXN-00000000AB"), Reason: "Successful"},
		},
		{
			name:     "transfer success",
			body:     `{"event":"transfer.success","data":{"reference":"TXN-00000000CD","transfer_code":"TRF_1"}}`,
			expected: ledger.SettlementEvent{Type: ledger.SettlementTransferSuccess, Reference: mustReference(test, "TXN-00000000CD"), ProviderCode: "TRF_1"},
		},
		{
			name:     "transfer failed",
			body:     `{"event":"transfer.failed","data":{"reference":"TXN-00000000CD","transfer_code":"TRF_1","reason":"Account closed"}}`,
			expected: ledger.SettlementEvent{Type: ledger.SettlementTransferFailed, Reference: mustReference(test, "TXN-00000000CD"), ProviderCode: "TRF_1", Reason: "Account closed"},
		},
		{
			name:     "dispute uses transaction reference",
			body:     `{"event":"charge.dispute.create","data":{"reference":"DSP-1","category":"fraud","transaction":{"reference":"TXN-00000000EF"}}}`,
			expected: ledger.SettlementEvent{Type: ledger.SettlementChargeDispute, Reference: mustReference(test, "TXN-00000000EF"), Reason: "fraud"},
		},
		{
			name:     "dispute without transaction",
			body:     `{"event":"charge.dispute.create","data":{"reference":"TXN-00000000EF"}}`,
			expected: ledger.SettlementEvent{Type: ledger.SettlementChargeDispute, Reference: mustReference(test, "TXN-00000000EF")},
		},
		{
			name:     "missing reference",
			body:     `{"event":"customeridentification.success","data":{}}`,
			expected: ledger.SettlementEvent{Type: ledger.SettlementEventType("customeridentification.success")},
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			event, err := paystack.ParseEvent([]byte(testCase.body))
			require.NoError(test, err)
			assert.Equal(test, testCase.expected, event)
		})
	}
}

func TestParseEventRejectsMalformedBodies(test *testing.T) {
	for _, body := range []string{`not json`, `{"data":{"reference":"TXN-1"}}`, `[]`} {
		_, err := paystack.ParseEvent([]byte(body))
		assert.ErrorIs(test, err, ledger.ErrInvalidInput, body)
	}
}
