package gateway

import (
	"context"
	"errors"
	"net/http"

	"referralpay/pkg/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//go:generate mockgen -source=provider.go -destination=mock/provider_mock.go -package=mock

// Provider is the payment gateway as seen by the deposit and withdrawal
// flows: credentials and callback URLs are already bound.
type Provider interface {
	Deposit(ctx context.Context, amount decimal.Decimal, phone, reference, description string) (*DepositResponse, error)
	Disburse(ctx context.Context, amount decimal.Decimal, phone, originatorRef string) (*DisbursementResponse, error)
}

type Daraja struct {
	client     *Client
	tokens     *TokenCache
	mpesa      mpesaSettings
	credential string
}

type mpesaSettings struct {
	ShortCode       string
	TillNumber      string
	PassKey         string
	TransactionType string
	InitiatorName   string
	CallbackURL     string
	ResultURL       string
	TimeoutURL      string
}

func NewDaraja(cfg *config.Config) (Provider, error) {
	m := cfg.Mpesa
	client := NewClient(BaseURLFor(m.Environment, m.BaseURL), m.Timeout)

	credential := m.InitiatorPassword
	if m.CertificatePath != "" {
		var err error
		credential, err = LoadSecurityCredential(m.CertificatePath, m.InitiatorPassword)
		if err != nil {
			return nil, err
		}
	}

	return &Daraja{
		client:     client,
		tokens:     NewTokenCache(client, m.ConsumerKey, m.ConsumerSecret, m.TokenTTL),
		credential: credential,
		mpesa: mpesaSettings{
			ShortCode:       m.ShortCode,
			TillNumber:      m.TillNumber,
			PassKey:         m.PassKey,
			TransactionType: m.TransactionType,
			InitiatorName:   m.InitiatorName,
			CallbackURL:     m.CallbackURL,
			ResultURL:       m.B2CResultURL,
			TimeoutURL:      m.B2CTimeoutURL,
		},
	}, nil
}

func (d *Daraja) Deposit(ctx context.Context, amount decimal.Decimal, phone, reference, description string) (*DepositResponse, error) {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.InitiateDeposit(ctx, DepositRequest{
		Token:           token,
		ShortCode:       d.mpesa.ShortCode,
		PartyB:          d.mpesa.TillNumber,
		PassKey:         d.mpesa.PassKey,
		TransactionType: d.mpesa.TransactionType,
		Amount:          amount,
		Phone:           phone,
		Reference:       reference,
		Description:     description,
		CallbackURL:     d.mpesa.CallbackURL,
	})
	d.checkToken(err)
	return resp, err
}

func (d *Daraja) Disburse(ctx context.Context, amount decimal.Decimal, phone, originatorRef string) (*DisbursementResponse, error) {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.InitiateDisbursement(ctx, DisbursementRequest{
		Token:              token,
		ShortCode:          d.mpesa.ShortCode,
		InitiatorName:      d.mpesa.InitiatorName,
		SecurityCredential: d.credential,
		Amount:             amount,
		Phone:              phone,
		OriginatorRef:      originatorRef,
		ResultURL:          d.mpesa.ResultURL,
		TimeoutURL:         d.mpesa.TimeoutURL,
	})
	d.checkToken(err)
	return resp, err
}

// checkToken drops a token the provider no longer accepts.
func (d *Daraja) checkToken(err error) {
	var ge *GatewayError
	if errors.As(err, &ge) && ge.StatusCode == http.StatusUnauthorized {
		zap.L().Warn("[Gateway] access token rejected, invalidating cache")
		d.tokens.Invalidate()
	}
}
