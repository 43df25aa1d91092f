package reconciler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const stkSuccess = `{"Body":{"stkCallback":{
	"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"The service request is processed successfully.",
	"CallbackMetadata":{"Item":[
		{"Name":"Amount","Value":1000},
		{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},
		{"Name":"TransactionDate","Value":20191219102115},
		{"Name":"PhoneNumber","Value":254708374149}]}}}}`

func TestParseDepositSuccess(t *testing.T) {
	res, err := ParseDeposit([]byte(stkSuccess))
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Equal(t, "m-1", res.MerchantRequestID)
	require.NotNil(t, res.Receipt)
	require.Equal(t, "NLJ7RT61SV", *res.Receipt)
}

func TestParseDepositWithoutReceipt(t *testing.T) {
	res, err := ParseDeposit([]byte(`{"Body":{"stkCallback":{"MerchantRequestID":"m-1","ResultCode":0,"CallbackMetadata":{"Item":[{"Name":"Amount","Value":10}]}}}}`))
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Nil(t, res.Receipt)
}

func TestParseDepositCancelled(t *testing.T) {
	res, err := ParseDeposit([]byte(`{"Body":{"stkCallback":{"MerchantRequestID":"m-1","ResultCode":"1032","ResultDesc":"Request cancelled by user"}}}`))
	require.NoError(t, err)
	require.False(t, res.Succeeded())
	require.Equal(t, 1032, res.ResultCode)
}

func TestParseDepositMalformed(t *testing.T) {
	for _, raw := range []string{
		`{}`,
		`{"Body":{}}`,
		`{"Body":{"stkCallback":{"ResultCode":0}}}`,
		`{"Body":{"stkCallback":{"MerchantRequestID":"m-1"}}}`,
		`{"Body":{"stkCallback":{"MerchantRequestID":"m-1","ResultCode":"abc"}}}`,
		`[]`,
	} {
		_, err := ParseDeposit([]byte(raw))
		require.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestParseDisbursement(t *testing.T) {
	res, err := ParseDisbursement([]byte(`{"Result":{"ResultType":0,"ResultCode":0,"ResultDesc":"ok","OriginatorConversationID":"WD-1","ConversationID":"AG_1","TransactionID":"NLJ41HAY6Q"}}`))
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Equal(t, "NLJ41HAY6Q", res.TransactionID)

	res, err = ParseDisbursement([]byte(`{"Result":{"ResultType":0,"ResultCode":2001,"OriginatorConversationID":"WD-1"}}`))
	require.NoError(t, err)
	require.False(t, res.Succeeded())

	res, err = ParseDisbursement([]byte(`{"Result":{"OriginatorConversationID":"WD-1"}}`))
	require.NoError(t, err)
	require.False(t, res.Succeeded())
	require.Nil(t, res.ResultCode)

	_, err = ParseDisbursement([]byte(`{"Result":{"ResultCode":0}}`))
	require.ErrorIs(t, err, ErrMalformed)
	_, err = ParseDisbursement([]byte(`{"Other":{}}`))
	require.ErrorIs(t, err, ErrMalformed)
}
