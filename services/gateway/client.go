package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// Client talks to the Daraja API. It holds no credentials and caches nothing;
// callers pass the access token on every request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// BaseURLFor maps an environment name onto the provider host.
func BaseURLFor(environment, override string) string {
	if override != "" {
		return override
	}
	if environment == "production" {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

// FetchAccessToken exchanges the consumer key and secret for a bearer token.
func (c *Client) FetchAccessToken(ctx context.Context, key, secret string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", &GatewayError{Op: "token", Err: errors.Join(ErrAuth, err)}
	}
	req.SetBasicAuth(key, secret)

	status, body, err := c.do(req)
	if err != nil {
		return "", &GatewayError{Op: "token", StatusCode: status, Body: body, Err: errors.Join(ErrAuth, err)}
	}

	var out tokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &GatewayError{Op: "token", StatusCode: status, Body: body, Err: errors.Join(ErrAuth, err)}
	}
	if out.AccessToken == "" {
		return "", &GatewayError{Op: "token", StatusCode: status, Body: body, Err: errors.Join(ErrAuth, errors.New("empty access_token"))}
	}
	return out.AccessToken, nil
}

// InitiateDeposit sends an STK push to the customer's phone. The caller
// persists the returned identifiers.
func (c *Client) InitiateDeposit(ctx context.Context, r DepositRequest) (*DepositResponse, error) {
	phone, err := NormalizePhone(r.Phone)
	if err != nil {
		return nil, err
	}
	amount, err := wholeAmount(r)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().Format(timestampLayout)
	partyB := r.PartyB
	if partyB == "" {
		partyB = r.ShortCode
	}
	txType := r.TransactionType
	if txType == "" {
		txType = TransactionTypeBuyGoods
	}

	body := stkPushBody{
		BusinessShortCode: r.ShortCode,
		Password:          Password(r.ShortCode, r.PassKey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   txType,
		Amount:            amount,
		PartyA:            phone,
		PartyB:            partyB,
		PhoneNumber:       phone,
		CallBackURL:       r.CallbackURL,
		AccountReference:  r.Reference,
		TransactionDesc:   r.Description,
	}

	var out DepositResponse
	raw, err := c.postJSON(ctx, "stkpush", stkPushPath, r.Token, body, &out)
	if err != nil {
		return nil, err
	}
	if out.ResponseCode != "0" {
		return nil, &GatewayError{Op: "stkpush", StatusCode: http.StatusOK, Body: raw, Err: fmt.Errorf("%w: response code %q: %s", ErrNotAccepted, out.ResponseCode, out.ResponseDescription)}
	}
	if out.MerchantRequestID == "" {
		return nil, &GatewayError{Op: "stkpush", StatusCode: http.StatusOK, Body: raw, Err: fmt.Errorf("%w: missing MerchantRequestID", ErrMalformedResponse)}
	}
	return &out, nil
}

// InitiateDisbursement sends a B2C payment. The caller stores the returned
// OriginatorConversationID as the withdrawal correlation key.
func (c *Client) InitiateDisbursement(ctx context.Context, r DisbursementRequest) (*DisbursementResponse, error) {
	phone, err := NormalizePhone(r.Phone)
	if err != nil {
		return nil, err
	}
	if !r.Amount.IsPositive() || !r.Amount.Equal(r.Amount.Truncate(0)) {
		return nil, ErrInvalidAmount
	}

	remarks := r.Remarks
	if remarks == "" {
		remarks = "Referral Earnings Withdrawal"
	}
	occasion := r.Occasion
	if occasion == "" {
		occasion = "Referral Withdrawal"
	}

	body := b2cBody{
		OriginatorConversationID: r.OriginatorRef,
		InitiatorName:            r.InitiatorName,
		SecurityCredential:       r.SecurityCredential,
		CommandID:                CommandBusinessPayment,
		Amount:                   r.Amount.IntPart(),
		PartyA:                   r.ShortCode,
		PartyB:                   phone,
		Remarks:                  remarks,
		QueueTimeOutURL:          r.TimeoutURL,
		ResultURL:                r.ResultURL,
		Occasion:                 occasion,
	}

	var out DisbursementResponse
	raw, err := c.postJSON(ctx, "b2c", b2cPaymentPath, r.Token, body, &out)
	if err != nil {
		return nil, err
	}
	if out.ResponseCode != "0" {
		return nil, &GatewayError{Op: "b2c", StatusCode: http.StatusOK, Body: raw, Err: fmt.Errorf("%w: response code %q: %s", ErrNotAccepted, out.ResponseCode, out.ResponseDescription)}
	}
	if out.OriginatorConversationID == "" {
		out.OriginatorConversationID = r.OriginatorRef
	}
	return &out, nil
}

// Password is base64(shortcode + passkey + timestamp).
func Password(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}

func wholeAmount(r DepositRequest) (int64, error) {
	if !r.Amount.IsPositive() || !r.Amount.Equal(r.Amount.Truncate(0)) {
		return 0, ErrInvalidAmount
	}
	return r.Amount.IntPart(), nil
}

func (c *Client) postJSON(ctx context.Context, op, path, token string, in, out any) ([]byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, &GatewayError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return body, &GatewayError{Op: op, StatusCode: status, Body: body, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return body, &GatewayError{Op: op, StatusCode: status, Body: body, Err: errors.Join(ErrMalformedResponse, err)}
	}
	return body, nil
}

// do executes req and returns the body. Non-2xx statuses are errors.
func (c *Client) do(req *http.Request) (int, []byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	zap.L().Debug("[Gateway] provider call",
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	if err != nil {
		return resp.StatusCode, body, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, body, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, body, nil
}
