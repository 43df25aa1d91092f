package reconciler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformed = errors.New("reconciler: malformed callback payload")

// code accepts both numeric and quoted result codes.
type code struct {
	value int
	set   bool
}

func (c *code) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid result code %s", b)
	}
	c.value, c.set = v, true
	return nil
}

type metadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

type stkCallbackBody struct {
	Body struct {
		StkCallback *struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        code   `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []metadataItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type resultBody struct {
	Result *struct {
		ResultType               code   `json:"ResultType"`
		ResultCode               code   `json:"ResultCode"`
		ResultDesc               string `json:"ResultDesc"`
		OriginatorConversationID string `json:"OriginatorConversationID"`
		ConversationID           string `json:"ConversationID"`
		TransactionID            string `json:"TransactionID"`
	} `json:"Result"`
}

// DepositResult is the part of a push-payment callback the ledger needs.
type DepositResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	// Receipt is nil when the callback carried no MpesaReceiptNumber.
	Receipt *string
}

func (r DepositResult) Succeeded() bool {
	return r.ResultCode == 0
}

// DisbursementResult covers both result and timeout notifications.
type DisbursementResult struct {
	OriginatorConversationID string
	ConversationID           string
	TransactionID            string
	ResultType               *int
	ResultCode               *int
	ResultDesc               string
}

// Succeeded requires both codes present and zero; a missing code is a
// failure.
func (r DisbursementResult) Succeeded() bool {
	return r.ResultType != nil && r.ResultCode != nil && *r.ResultType == 0 && *r.ResultCode == 0
}

func ParseDeposit(raw []byte) (DepositResult, error) {
	var body stkCallbackBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return DepositResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	cb := body.Body.StkCallback
	if cb == nil {
		return DepositResult{}, fmt.Errorf("%w: missing Body.stkCallback", ErrMalformed)
	}
	if cb.MerchantRequestID == "" {
		return DepositResult{}, fmt.Errorf("%w: missing MerchantRequestID", ErrMalformed)
	}
	if !cb.ResultCode.set {
		return DepositResult{}, fmt.Errorf("%w: missing ResultCode", ErrMalformed)
	}

	res := DepositResult{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode.value,
		ResultDesc:        cb.ResultDesc,
	}
	for _, item := range cb.CallbackMetadata.Item {
		if item.Name != "MpesaReceiptNumber" {
			continue
		}
		if receipt := metadataString(item.Value); receipt != "" {
			res.Receipt = &receipt
		}
		break
	}
	return res, nil
}

func ParseDisbursement(raw []byte) (DisbursementResult, error) {
	var body resultBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return DisbursementResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	r := body.Result
	if r == nil {
		return DisbursementResult{}, fmt.Errorf("%w: missing Result", ErrMalformed)
	}
	if r.OriginatorConversationID == "" {
		return DisbursementResult{}, fmt.Errorf("%w: missing OriginatorConversationID", ErrMalformed)
	}

	res := DisbursementResult{
		OriginatorConversationID: r.OriginatorConversationID,
		ConversationID:           r.ConversationID,
		TransactionID:            r.TransactionID,
		ResultDesc:               r.ResultDesc,
	}
	if r.ResultType.set {
		v := r.ResultType.value
		res.ResultType = &v
	}
	if r.ResultCode.set {
		v := r.ResultCode.value
		res.ResultCode = &v
	}
	return res, nil
}

func metadataString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}
