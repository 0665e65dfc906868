package payment

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"ms-pettag/internal/models"
)

// Signer checks the x_signature ePayco sends with each confirmation.
type Signer struct {
	CustID string
	Key    string
}

func (s Signer) Enabled() bool { return s.CustID != "" && s.Key != "" }

func (s Signer) Sign(ref, transactionID, amount, currency string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{s.CustID, s.Key, ref, transactionID, amount, currency}, "^")))
	return hex.EncodeToString(sum[:])
}

// Verify passes everything when no credentials are configured.
func (s Signer) Verify(n models.GatewayNotification) bool {
	if !s.Enabled() {
		return true
	}
	want := s.Sign(n.Reference, n.TransactionID, n.Amount, n.Currency)
	got := strings.ToLower(strings.TrimSpace(n.Signature))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
