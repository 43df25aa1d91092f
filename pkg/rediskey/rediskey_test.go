package rediskey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	require.Equal(t, "seq:WD:251019", BuildSequenceKey("WD", "251019"))
	require.Equal(t, "referral:chain:42", BuildReferralChainKey("42"))
	require.Equal(t, "gateway:token:abc", BuildGatewayTokenKey("abc"))
}
