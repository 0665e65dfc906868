package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ms-pettag/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

type StripeConfig struct {
	SecretKey string
	Timeout   time.Duration
	// BackendURL overrides api.stripe.com, for tests.
	BackendURL string
}

// Stripe charges through PaymentIntents. The order id rides in metadata.order_id.
type Stripe struct {
	client *client.API
	log    *logger.Logger
}

func NewStripe(cfg StripeConfig, log *logger.Logger) (*Stripe, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY not set")
		return nil, ErrStripeClientInitFailed
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	backends := stripe.NewBackends(httpClient)
	if cfg.BackendURL != "" {
		api := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(cfg.BackendURL),
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripe.Int64(0),
		})
		backends = &stripe.Backends{API: api, Connect: api, Uploads: api}
	}

	sc := client.New(cfg.SecretKey, backends)
	log.Info("STRIPE", "Stripe client initialized")
	return &Stripe{client: sc, log: log}, nil
}

func (s *Stripe) Name() string { return "stripe" }

// Charge confirms a PaymentIntent with the client-side payment method token.
// Card declines come back as an unsuccessful result, not an error.
func (s *Stripe) Charge(ctx context.Context, p ChargeParams) (*ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(minorUnits(p.Amount)),
		Currency:           stripe.String(strings.ToLower(p.Currency)),
		PaymentMethod:      stripe.String(p.Token),
		Description:        stripe.String(p.Description),
		ConfirmationMethod: stripe.String("manual"),
		Confirm:            stripe.Bool(true),
		PaymentMethodTypes: []*string{stripe.String("card")},
		ReceiptEmail:       stripe.String(p.Customer.Email),
	}
	params.Context = ctx
	params.AddMetadata("order_id", p.OrderID)

	pi, err := s.client.PaymentIntents.New(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Type == stripe.ErrorTypeCard {
			s.log.Warn("STRIPE", fmt.Sprintf("card declined for order %s: %s", p.OrderID, serr.Msg))
			res := &ChargeResult{Success: false, Status: "declined", StateCode: string(serr.Code), Message: serr.Msg}
			if serr.PaymentIntent != nil {
				res.Reference = serr.PaymentIntent.ID
			}
			return res, nil
		}
		return nil, fmt.Errorf("stripe create payment intent: %w", err)
	}

	s.log.LogPayment("CHARGE", pi.ID, fmt.Sprintf("order %s status %s", p.OrderID, pi.Status))
	return &ChargeResult{
		Success:   pi.Status != stripe.PaymentIntentStatusCanceled,
		Reference: pi.ID,
		Status:    string(pi.Status),
		Message:   string(pi.Status),
	}, nil
}

func (s *Stripe) GetStatus(ctx context.Context, reference string) (*StatusResult, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	pi, err := s.client.PaymentIntents.Get(reference, params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == http.StatusNotFound {
			return &StatusResult{Success: false, Reference: reference}, nil
		}
		return nil, fmt.Errorf("stripe get payment intent: %w", err)
	}
	return StatusFromIntent(pi), nil
}

// StatusFromIntent flattens a PaymentIntent. The webhook handler uses it too.
func StatusFromIntent(pi *stripe.PaymentIntent) *StatusResult {
	res := &StatusResult{
		Success:   true,
		Reference: pi.ID,
		Status:    string(pi.Status),
		OrderID:   pi.Metadata["order_id"],
		Amount:    strconv.FormatInt(majorUnits(pi.Amount), 10),
		Currency:  strings.ToUpper(string(pi.Currency)),
	}
	if ch := pi.LatestCharge; ch != nil {
		res.TransactionID = ch.ID
		if ch.PaymentMethodDetails != nil && ch.PaymentMethodDetails.Card != nil {
			res.Franchise = string(ch.PaymentMethodDetails.Card.Brand)
			res.CardLast4 = ch.PaymentMethodDetails.Card.Last4
		}
		if ch.AuthorizationCode != "" {
			res.ApprovalCode = ch.AuthorizationCode
		}
	}
	return res
}

// Stripe treats COP as a two-decimal currency.
func minorUnits(amount int64) int64 { return amount * 100 }
func majorUnits(amount int64) int64 { return amount / 100 }
