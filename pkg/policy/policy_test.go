package policy

import (
	"testing"

	"referralpay/pkg/auth"
	"referralpay/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestBuiltinPolicy(t *testing.T) {
	p, err := New(&config.Config{})
	require.NoError(t, err)

	user := auth.Principal{UserID: "1", Role: auth.RoleUser}
	admin := auth.Principal{UserID: "2", Role: auth.RoleAdmin}

	cases := []struct {
		principal auth.Principal
		object    string
		action    string
		want      bool
	}{
		{user, "/v1/me", "GET", true},
		{user, "/v1/deposits", "POST", true},
		{user, "/v1/deposits/m-1", "GET", true},
		{user, "/v1/withdrawals", "POST", true},
		{user, "/v1/admin/withdrawals", "GET", false},
		{user, "/v1/admin/settings/initial-deposit", "PUT", false},
		{admin, "/v1/admin/withdrawals/9:approve", "POST", true},
		{admin, "/v1/me", "GET", true},
		{auth.Principal{UserID: "x", Role: "guest"}, "/v1/me", "GET", false},
	}

	for _, tc := range cases {
		got, err := p.Allow(tc.principal, tc.object, tc.action)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "%s %s %s", tc.principal.Role, tc.action, tc.object)
	}
}
