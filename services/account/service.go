package account

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"referralpay/pkg/auth"
	"referralpay/pkg/db/option"
	"referralpay/pkg/errutil"
	"referralpay/pkg/logger"
	"referralpay/services/gateway"
	"referralpay/services/ledger"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const minPasswordLength = 6

type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phone_number"`
	// Ref is the id of the referring user.
	Ref string `json:"ref,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Service struct {
	store  *ledger.Store
	tokens *auth.Tokens
}

type Params struct {
	fx.In
	Store  *ledger.Store
	Tokens *auth.Tokens
}

func NewService(p Params) *Service {
	return &Service{store: p.Store, tokens: p.Tokens}
}

func (r *RegisterRequest) validate() error {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(strings.ToLower(r.Email))

	var details []errutil.Detail
	if r.Username == "" {
		details = append(details, errutil.Detail{Field: "username", Message: "required"})
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		details = append(details, errutil.Detail{Field: "email", Message: "invalid email address"})
	}
	if len(r.Password) < minPasswordLength {
		details = append(details, errutil.Detail{Field: "password", Message: "must be at least 6 characters"})
	}
	if r.PhoneNumber != "" {
		phone, err := gateway.NormalizePhone(r.PhoneNumber)
		if err != nil {
			details = append(details, errutil.Detail{Field: "phone_number", Message: err.Error()})
		}
		r.PhoneNumber = phone
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid registration", nil, errutil.WithDetails(details...))
	}
	return nil
}

// Register creates a user. A valid ref records a pending tier-1 referral;
// unknown referrers and self-referral are ignored.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*ledger.User, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, errutil.Internal("failed to hash password", err)
	}

	user := &ledger.User{
		ID:           s.store.NewID(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		PhoneNumber:  req.PhoneNumber,
		Role:         ledger.RoleUser,
	}

	log := logger.FromContext(ctx)
	err = s.store.Atomic(ctx, func(tx *gorm.DB) error {
		users := s.store.Users().WithTrx(tx)

		taken, err := users.Count(ctx, nil, option.Equal("username", user.Username))
		if err != nil {
			return err
		}
		if taken == 0 {
			taken, err = users.Count(ctx, nil, option.Equal("email", user.Email))
			if err != nil {
				return err
			}
		}
		if taken > 0 {
			return errutil.Conflict("username or email already registered", nil)
		}

		if err := users.Create(ctx, user); err != nil {
			return err
		}

		ref := strings.TrimSpace(req.Ref)
		if ref == "" || ref == user.ID {
			return nil
		}
		referrer, err := users.FindOne(ctx, nil, option.Equal("id", ref))
		if err != nil {
			return err
		}
		if referrer == nil {
			log.Warn("[Account] ignoring unknown referrer", zap.String("ref", ref))
			return nil
		}
		return s.store.Referrals().WithTrx(tx).Create(ctx, &ledger.Referral{
			ID:         s.store.NewID(),
			ReferrerID: referrer.ID,
			ReferredID: user.ID,
			Tier:       ledger.Tier1,
			Status:     ledger.ReferralPending,
		})
	})
	if err != nil {
		if _, ok := errutil.As(err); ok {
			return nil, err
		}
		return nil, errutil.Internal("failed to register user", err)
	}

	log.Info("[Account] user registered", zap.String("user_id", user.ID))
	return user, nil
}

// Login returns a bearer token for valid credentials.
func (s *Service) Login(ctx context.Context, req LoginRequest) (string, *ledger.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return "", nil, errutil.Unauthorized("invalid username or password", nil)
	}

	user, err := s.store.Users().FindOne(ctx, nil, option.Equal("username", username))
	if err != nil {
		return "", nil, errutil.Internal("failed to load user", err)
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		return "", nil, errutil.Unauthorized("invalid username or password", nil)
	}

	token, err := s.tokens.Issue(auth.Principal{UserID: user.ID, Role: auth.Role(user.Role)})
	if err != nil {
		return "", nil, errutil.Internal("failed to issue token", err)
	}
	return token, user, nil
}

func (s *Service) Profile(ctx context.Context) (*ledger.User, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return nil, errutil.Unauthorized("missing principal", nil)
	}
	user, err := s.store.GetUser(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return nil, errutil.NotFound("user not found", err)
		}
		return nil, errutil.Internal("failed to load user", err)
	}
	return user, nil
}

func (s *Service) Referrals(ctx context.Context) ([]ledger.ReferralView, error) {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return nil, errutil.Unauthorized("missing principal", nil)
	}
	rows, err := s.store.ListReferrals(ctx, p.UserID)
	if err != nil {
		return nil, errutil.Internal("failed to list referrals", err)
	}
	return rows, nil
}
