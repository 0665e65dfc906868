package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ms-pettag/internal/logger"
)

// ePayco references are numeric; letters, dash and underscore cover test
// and legacy references.
var referencePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type EpaycoConfig struct {
	APIURL        string
	ValidationURL string
	PublicKey     string
	PrivateKey    string
	TestMode      bool
	Timeout       time.Duration
}

// Epayco talks to the ePayco REST API.
type Epayco struct {
	apiURL        *url.URL
	validationURL *url.URL
	publicKey     string
	privateKey    string
	testMode      bool
	httpClient    *http.Client
	log           *logger.Logger
}

func NewEpayco(cfg EpaycoConfig, log *logger.Logger) (*Epayco, error) {
	apiURL, err := parseAbsolute(cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("epayco api url: %w", err)
	}
	validationURL, err := parseAbsolute(cfg.ValidationURL)
	if err != nil {
		return nil, fmt.Errorf("epayco validation url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Epayco{
		apiURL:        apiURL,
		validationURL: validationURL,
		publicKey:     cfg.PublicKey,
		privateKey:    cfg.PrivateKey,
		testMode:      cfg.TestMode,
		httpClient:    &http.Client{Timeout: timeout},
		log:           log,
	}, nil
}

func parseAbsolute(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("url %q must be absolute", raw)
	}
	return parsed, nil
}

func (e *Epayco) Name() string { return "epayco" }

type epaycoCharge struct {
	PublicKey   string `json:"public_key"`
	TokenCard   string `json:"token_card"`
	CustomerID  string `json:"customer_id"`
	DocType     string `json:"doc_type"`
	DocNumber   string `json:"doc_number"`
	Name        string `json:"name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	City        string `json:"city"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	CellPhone   string `json:"cell_phone"`
	Bill        string `json:"bill"`
	Description string `json:"description"`
	Value       string `json:"value"`
	Tax         string `json:"tax"`
	TaxBase     string `json:"tax_base"`
	Currency    string `json:"currency"`
	Dues        string `json:"dues"`
	IP          string `json:"ip"`
	Extra1      string `json:"extra1"`
	TestMode    bool   `json:"test"`
}

type epaycoChargeResponse struct {
	Success bool `json:"success"`
	Data    struct {
		RefPayco  flexString `json:"ref_payco"`
		Estado    string     `json:"estado"`
		Respuesta string     `json:"respuesta"`
		CodEstado flexString `json:"cod_estado"`
		Message   string     `json:"message"`
	} `json:"data"`
}

// Charge creates a card charge. The order id travels in extra1 so the
// confirmation webhook can find the order again.
func (e *Epayco) Charge(ctx context.Context, p ChargeParams) (*ChargeResult, error) {
	docType := p.Customer.DocType
	if docType == "" {
		docType = "CC"
	}
	dues := p.Dues
	if dues < 1 {
		dues = 1
	}
	ip := p.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}
	body := epaycoCharge{
		PublicKey:   e.publicKey,
		TokenCard:   p.Token,
		CustomerID:  p.Customer.Email,
		DocType:     docType,
		DocNumber:   p.Customer.DocNumber,
		Name:        p.Customer.Name,
		LastName:    p.Customer.LastName,
		Email:       p.Customer.Email,
		City:        p.Shipping.City,
		Address:     p.Shipping.Address,
		Phone:       p.Customer.Phone,
		CellPhone:   p.Customer.Phone,
		Bill:        p.OrderID,
		Description: p.Description,
		Value:       strconv.FormatInt(p.Amount, 10),
		Tax:         "0",
		TaxBase:     "0",
		Currency:    p.Currency,
		Dues:        strconv.Itoa(dues),
		IP:          ip,
		Extra1:      p.OrderID,
		TestMode:    e.testMode,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	endpoint := e.apiURL.JoinPath("payment", "v1", "charge", "create")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.privateKey)

	var out epaycoChargeResponse
	if err := e.do(req, &out); err != nil {
		return nil, err
	}
	e.log.LogPayment("CHARGE", string(out.Data.RefPayco), fmt.Sprintf("order %s state %q", p.OrderID, out.Data.Estado))

	return &ChargeResult{
		Success:   out.Success,
		Reference: string(out.Data.RefPayco),
		StateCode: string(out.Data.CodEstado),
		Status:    out.Data.Estado,
		Message:   firstNonEmpty(out.Data.Respuesta, out.Data.Message),
	}, nil
}

type epaycoValidation struct {
	Success bool `json:"success"`
	Data    struct {
		RefPayco         flexString `json:"x_ref_payco"`
		TransactionID    flexString `json:"x_transaction_id"`
		CodTransaction   flexString `json:"x_cod_transaction_state"`
		TransactionState string     `json:"x_transaction_state"`
		Response         string     `json:"x_response"`
		Extra1           string     `json:"x_extra1"`
		IDInvoice        string     `json:"x_id_invoice"`
		Amount           flexString `json:"x_amount"`
		CurrencyCode     string     `json:"x_currency_code"`
		ApprovalCode     flexString `json:"x_approval_code"`
		Franchise        string     `json:"x_franchise"`
		CardNumber       string     `json:"x_cardnumber"`
	} `json:"data"`
}

// GetStatus reads a transaction from the public validation endpoint.
func (e *Epayco) GetStatus(ctx context.Context, reference string) (*StatusResult, error) {
	if !referencePattern.MatchString(reference) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReference, reference)
	}
	endpoint := e.validationURL.JoinPath(reference)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	var out epaycoValidation
	if err := e.do(req, &out); err != nil {
		return nil, err
	}
	d := out.Data
	return &StatusResult{
		Success:       out.Success,
		Reference:     firstNonEmpty(string(d.RefPayco), reference),
		TransactionID: string(d.TransactionID),
		StateCode:     string(d.CodTransaction),
		Status:        d.TransactionState,
		Response:      d.Response,
		OrderID:       firstNonEmpty(d.Extra1, d.IDInvoice),
		Amount:        string(d.Amount),
		Currency:      d.CurrencyCode,
		ApprovalCode:  string(d.ApprovalCode),
		Franchise:     d.Franchise,
		CardLast4:     LastFour(d.CardNumber),
	}, nil
}

func (e *Epayco) do(req *http.Request, out interface{}) error {
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		e.log.Error("PAYMENT", fmt.Sprintf("epayco %s %s: %s %s", req.Method, req.URL.Path, resp.Status, body))
		return fmt.Errorf("epayco error: %s", resp.Status)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode epayco response (%s): %w", resp.Status, err)
	}
	return nil
}

// flexString accepts both JSON strings and numbers. ePayco is not consistent.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.TrimSpace(string(b)))
	return nil
}

// LastFour keeps only the trailing digits of a masked card number.
func LastFour(card string) string {
	card = strings.TrimSpace(card)
	if len(card) <= 4 {
		return card
	}
	return card[len(card)-4:]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
