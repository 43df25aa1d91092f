package featureflags

import (
	"context"

	"referralpay/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

// DisbursementsEnabled gates every outbound payout.
const DisbursementsEnabled = "disbursements_enabled"

type FeatureFlag interface {
	Enabled(ctx context.Context, feature string) (bool, error)
}

type flagsClient interface {
	GetEnvironmentFlags() (flagsmith.Flags, error)
}

type featureflag struct {
	client flagsClient
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

// ProvideFeatureFlag returns a Flagsmith-backed implementation, or one that
// reports every feature enabled when no API key is configured.
func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		zap.L().Info("[FeatureFlag] no Flagsmith key, all features enabled")
		return AlwaysOn{}
	}

	opts := []flagsmith.Option{
		flagsmith.WithAnalytics(),
	}
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

// Enabled treats a feature unknown to Flagsmith as enabled.
func (s *featureflag) Enabled(ctx context.Context, feature string) (bool, error) {
	flags, err := s.client.GetEnvironmentFlags()
	if err != nil {
		return false, err
	}

	for _, f := range flags.AllFlags() {
		if f.FeatureName == feature {
			return f.Enabled, nil
		}
	}
	return true, nil
}

type AlwaysOn struct{}

func (AlwaysOn) Enabled(context.Context, string) (bool, error) { return true, nil }
