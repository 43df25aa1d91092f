package rediskey

import "fmt"

const (
	SequencePrefix      = "seq"
	ReferralChainPrefix = "referral:chain"
	GatewayTokenPrefix  = "gateway:token"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSequenceKey returns "seq:{prefix}:{day}"
func BuildSequenceKey(prefix, day string) string {
	return NamespaceKey(SequencePrefix, fmt.Sprintf("%s:%s", prefix, day))
}

// BuildReferralChainKey returns "referral:chain:{userID}"
func BuildReferralChainKey(userID string) string {
	return NamespaceKey(ReferralChainPrefix, userID)
}

// BuildGatewayTokenKey returns "gateway:token:{consumerKey}"
func BuildGatewayTokenKey(consumerKey string) string {
	return NamespaceKey(GatewayTokenPrefix, consumerKey)
}
