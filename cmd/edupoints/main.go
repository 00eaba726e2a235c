package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/edupoints/internal/clock"
	"github.com/smallbiznis/edupoints/internal/config"
	"github.com/smallbiznis/edupoints/internal/migration"
	"github.com/smallbiznis/edupoints/internal/observability"
	"github.com/smallbiznis/edupoints/internal/points"
	"github.com/smallbiznis/edupoints/internal/server"
	"github.com/smallbiznis/edupoints/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Functional Domains
		points.Module,
		server.Module,
	)
	app.Run()
}

// RegisterSnowflake builds the id node. Instances sharing a database need
// distinct SNOWFLAKE_NODE_ID values.
func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return node, nil
}
