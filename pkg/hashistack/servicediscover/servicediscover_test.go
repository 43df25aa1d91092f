package servicediscover

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPortOf(t *testing.T) {
	port, err := portOf(":8080")
	require.NoError(t, err)
	require.Equal(t, 8080, port)

	_, err = portOf("8080")
	require.Error(t, err)
}

func TestNewRegistration(t *testing.T) {
	reg := newRegistration("referralpay", "referralpay-host", "host", 8080)
	require.Equal(t, "referralpay-host", reg.ID)
	require.Equal(t, "http://host:8080/readyz", reg.Check.HTTP)
}
