package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

const omiseAPIBase = "https://api.omise.co"

// Omise adapts the Omise processor to the Gateway interface. Charge creation
// goes through the SDK; capture, expire and refund go through the REST API
// with the secret key as basic auth.
type Omise struct {
	client    *omise.Client
	secretKey string
	http      *http.Client
	base      string
	currency  string
}

// NewOmise builds the adapter. Every REST call carries the http client's
// timeout so a hung processor cannot stall a consumer partition.
func NewOmise(publicKey, secretKey string) (*Omise, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	return &Omise{
		client:    c,
		secretKey: secretKey,
		http:      &http.Client{Timeout: 15 * time.Second},
		base:      omiseAPIBase,
		currency:  "thb",
	}, nil
}

func (o *Omise) Prepare(ctx context.Context, req PrepareRequest) (string, error) {
	currency := req.Currency
	if currency == "" {
		currency = o.currency
	}
	ch := &omise.Charge{}
	err := o.client.Do(ch, &operations.CreateCharge{
		Amount:   req.Amount,
		Currency: currency,
		Card:     req.CardToken,
		Metadata: map[string]any{"reservation_id": req.ReservationID},
	})
	if err != nil {
		return "", wrapOmiseErr("create_charge", err)
	}
	if string(ch.Status) == "failed" {
		return "", &Error{Code: deref(ch.FailureCode), Message: deref(ch.FailureMessage)}
	}
	return ch.ID, nil
}

func (o *Omise) Confirm(ctx context.Context, ref string) error {
	return o.post(ctx, "/charges/"+ref+"/capture", nil)
}

func (o *Omise) Cancel(ctx context.Context, ref string) error {
	return o.post(ctx, "/charges/"+ref+"/expire", nil)
}

func (o *Omise) Refund(ctx context.Context, ref string, amount int64) error {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	return o.post(ctx, "/charges/"+ref+"/refunds", form)
}

// post performs a form-encoded REST call against the Omise API.
func (o *Omise) post(ctx context.Context, path string, form url.Values) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+path, body)
	if err != nil {
		return &Error{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(o.secretKey, "")

	res, err := o.http.Do(req)
	if err != nil {
		// Network failures and timeouts are worth a retry.
		return &Error{Message: err.Error(), Retryable: true}
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	payload, _ := io.ReadAll(res.Body)
	return &Error{
		Code:      http.StatusText(res.StatusCode),
		Message:   fmt.Sprintf("%s: %s", path, string(payload)),
		Retryable: res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500,
	}
}

func wrapOmiseErr(op string, err error) error {
	var oe *omise.Error
	if errors.As(err, &oe) {
		return &Error{Code: oe.Code, Message: oe.Message}
	}
	return &Error{Code: op, Message: err.Error(), Retryable: true}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
