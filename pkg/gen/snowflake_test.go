package gen

import (
	"testing"

	"referralpay/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestNewNode(t *testing.T) {
	node, err := NewNode(&config.Config{NodeID: 7})
	require.NoError(t, err)
	require.EqualValues(t, 7, node.Generate().Node())

	_, err = NewNode(&config.Config{NodeID: 4096})
	require.Error(t, err)
}
