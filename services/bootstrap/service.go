package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"referralpay/pkg/auth"
	"referralpay/pkg/config"
	"referralpay/pkg/db/option"
	"referralpay/services/intake"
	"referralpay/services/ledger"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	store  *ledger.Store
	queue  *intake.Queue
	config *config.Config
}

type ServiceParams struct {
	fx.In
	Store  *ledger.Store
	Queue  *intake.Queue
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		store:  p.Store,
		queue:  p.Queue,
		config: p.Config,
	}
}

// Run migrates every table, then seeds the initial deposit threshold and the
// admin account. Both seeds leave existing rows alone.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Migrate(); err != nil {
		return err
	}
	if err := s.SeedThreshold(ctx); err != nil {
		return err
	}
	return s.SeedAdmin(ctx)
}

func (s *Service) Migrate() error {
	if err := s.store.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate ledger: %w", err)
	}
	if err := s.queue.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate callback queue: %w", err)
	}
	zap.L().Info("[bootstrap] schema migrated")
	return nil
}

func (s *Service) SeedThreshold(ctx context.Context) error {
	_, err := s.store.Threshold(ctx)
	if err == nil {
		zap.L().Info("[bootstrap] initial deposit already configured")
		return nil
	}
	if !errors.Is(err, ledger.ErrThresholdNotConfigured) {
		return err
	}

	amount := s.config.InitialDeposit
	if !amount.IsPositive() {
		zap.L().Warn("[bootstrap] initial_deposit not set, referrals stay pending until an admin sets it")
		return nil
	}
	if err := s.store.SetThreshold(ctx, amount); err != nil {
		return fmt.Errorf("failed to seed initial deposit: %w", err)
	}
	zap.L().Info("[bootstrap] initial deposit seeded", zap.String("amount", amount.StringFixed(2)))
	return nil
}

func (s *Service) SeedAdmin(ctx context.Context) error {
	admin := s.config.Admin
	if admin.Username == "" || admin.Password == "" {
		zap.L().Error("[bootstrap] Admin configuration is incomplete. Skipping admin creation.")
		return nil
	}

	exist, err := s.store.Users().FindOne(ctx, nil, option.Equal("username", admin.Username))
	if err != nil {
		return fmt.Errorf("failed to check admin user: %w", err)
	}
	if exist != nil {
		if exist.Role != ledger.RoleAdmin {
			return fmt.Errorf("user %q exists without the admin role", admin.Username)
		}
		zap.L().Info("[bootstrap] Admin user already exists", zap.String("username", admin.Username))
		return nil
	}

	hash, err := auth.HashPassword(admin.Password)
	if err != nil {
		return err
	}
	email := admin.Email
	if email == "" {
		email = strings.ToLower(admin.Username) + "@localhost"
	}

	user := &ledger.User{
		ID:           s.store.NewID(),
		Username:     admin.Username,
		Email:        email,
		PasswordHash: hash,
		Role:         ledger.RoleAdmin,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	zap.L().Info("[bootstrap] Admin user created", zap.String("user_id", user.ID))
	return nil
}
