package health

import (
	"context"
	"errors"

	"referralpay/pkg/httpapi"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

// Module contributes readiness checkers for whatever backends the binary
// wires, and registers the gRPC health service when a server exists.
var Module = fx.Module("health",
	fx.Provide(
		fx.Annotate(NewDatabaseChecker, fx.ResultTags(`group:"checkers"`)),
		fx.Annotate(NewRedisChecker, fx.ResultTags(`group:"checkers"`)),
		health.NewServer,
	),
	fx.Invoke(registerGRPC),
)

type databaseChecker struct {
	db *gorm.DB
}

func NewDatabaseChecker(db *gorm.DB) httpapi.Checker {
	return &databaseChecker{db: db}
}

func (c *databaseChecker) Name() string { return "database" }

func (c *databaseChecker) Check(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type redisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) httpapi.Checker {
	return &redisChecker{client: client}
}

func (c *redisChecker) Name() string { return "redis" }

func (c *redisChecker) Check(ctx context.Context) error {
	if c.client == nil {
		return errors.New("redis client not configured")
	}
	return c.client.Ping(ctx).Err()
}

type grpcParams struct {
	fx.In
	Server *grpc.Server `optional:"true"`
	Health *health.Server
}

func registerGRPC(p grpcParams) {
	if p.Server == nil {
		return
	}
	healthpb.RegisterHealthServer(p.Server, p.Health)
	p.Health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}
