package gen

import (
	"fmt"

	"referralpay/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

// Module provides the snowflake node used for every primary key. Each
// running process needs its own node.id.
var Module = fx.Module("snowflake", fx.Provide(NewNode))

func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to init snowflake node %d: %w", cfg.NodeID, err)
	}
	return node, nil
}
