package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Godswillamos0/escrow-api/pkg/ledger"
)

// SignatureHeader carries the hex HMAC-SHA512 of the webhook body.
const SignatureHeader = "x-paystack-signature"

var errMalformedEvent = fmt.Errorf("%w: malformed webhook payload", ledger.ErrInvalidInput)

// VerifySignature checks the provider signature over the raw request body.
func VerifySignature(secretKey string, body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" || secretKey == "" {
		return ledger.ErrSignatureInvalid
	}
	provided, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return ledger.ErrSignatureInvalid
	}
	if !hmac.Equal(provided, Sign(secretKey, body)) {
		return ledger.ErrSignatureInvalid
	}
	return nil
}

// Sign returns the raw HMAC-SHA512 of body under secretKey.
func Sign(secretKey string, body []byte) []byte {
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	return mac.Sum(nil)
}

type webhookPayload struct {
	Event string      `json:"event"`
	Data  webhookData `json:"data"`
}

type webhookData struct {
	Reference    string              `json:"reference"`
	TransferCode string              `json:"transfer_code"`
	Reason       string              `json:"reason"`
	GatewayReply string              `json:"gateway_response"`
	Category     string              `json:"category"`
	Transaction  *webhookTransaction `json:"transaction"`
}

type webhookTransaction struct {
	Reference string `json:"reference"`
}

// ParseEvent decodes a verified webhook body. The reference of an event that
// carries none, or carries an invalid one, is left zero so the reconciler ignores it.
func ParseEvent(body []byte) (ledger.SettlementEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return ledger.SettlementEvent{}, errMalformedEvent
	}
	if strings.TrimSpace(payload.Event) == "" {
		return ledger.SettlementEvent{}, errMalformedEvent
	}
	event := ledger.SettlementEvent{
		Type:         ledger.SettlementEventType(strings.TrimSpace(payload.Event)),
		ProviderCode: payload.Data.TransferCode,
		Reason:       firstNonEmpty(payload.Data.Reason, payload.Data.GatewayReply, payload.Data.Category),
	}
	rawReference := payload.Data.Reference
	if event.Type == ledger.SettlementChargeDispute && payload.Data.Transaction != nil && payload.Data.Transaction.Reference != "" {
		rawReference = payload.Data.Transaction.Reference
	}
	if reference, err := ledger.NewReferenceCode(rawReference); err == nil {
		event.Reference = reference
	}
	return event, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
