package gateway

import "github.com/shopspring/decimal"

const (
	SandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	ProductionBaseURL = "https://api.safaricom.co.ke"

	tokenPath      = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath    = "/mpesa/stkpush/v1/processrequest"
	b2cPaymentPath = "/mpesa/b2c/v1/paymentrequest"

	timestampLayout = "20060102150405"

	CommandBusinessPayment  = "BusinessPayment"
	TransactionTypeBuyGoods = "CustomerBuyGoodsOnline"
	TransactionTypePayBill  = "CustomerPayBillOnline"
)

// DepositRequest carries everything needed for one STK push.
type DepositRequest struct {
	Token           string
	ShortCode       string
	PartyB          string
	PassKey         string
	TransactionType string
	Amount          decimal.Decimal
	Phone           string
	Reference       string
	Description     string
	CallbackURL     string
}

type DepositResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// DisbursementRequest carries everything needed for one B2C payment.
type DisbursementRequest struct {
	Token              string
	ShortCode          string
	InitiatorName      string
	SecurityCredential string
	Amount             decimal.Decimal
	Phone              string
	OriginatorRef      string
	ResultURL          string
	TimeoutURL         string
	Remarks            string
	Occasion           string
}

type DisbursementResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type b2cBody struct {
	OriginatorConversationID string `json:"OriginatorConversationID,omitempty"`
	InitiatorName            string `json:"InitiatorName"`
	SecurityCredential       string `json:"SecurityCredential"`
	CommandID                string `json:"CommandID"`
	Amount                   int64  `json:"Amount"`
	PartyA                   string `json:"PartyA"`
	PartyB                   string `json:"PartyB"`
	Remarks                  string `json:"Remarks"`
	QueueTimeOutURL          string `json:"QueueTimeOutURL"`
	ResultURL                string `json:"ResultURL"`
	Occasion                 string `json:"Occasion"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// errorBody is what the provider returns on 4xx/5xx.
type errorBody struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}
