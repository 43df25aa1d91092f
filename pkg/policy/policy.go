package policy

import (
	"fmt"

	"referralpay/pkg/auth"
	"referralpay/pkg/config"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("policy",
	fx.Provide(New),
)

// Policy decides whether a principal may perform action on object.
type Policy interface {
	Allow(p auth.Principal, object, action string) (bool, error)
}

const builtinModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && (p.act == "*" || r.act == p.act)
`

var builtinPolicies = [][]string{
	{string(auth.RoleUser), "/v1/me", "GET"},
	{string(auth.RoleUser), "/v1/deposits*", "*"},
	{string(auth.RoleUser), "/v1/withdrawals*", "*"},
	{string(auth.RoleUser), "/v1/referrals", "GET"},
	{string(auth.RoleAdmin), "/v1/admin/*", "*"},
}

type casbinPolicy struct {
	enforcer *casbin.Enforcer
}

// New loads the model and policy files named in config, or the built-in
// rules when none are configured. Admins inherit every user permission.
func New(cfg *config.Config) (Policy, error) {
	var (
		enforcer *casbin.Enforcer
		err      error
	)

	if cfg.AccessControl.Model != "" && cfg.AccessControl.Policy != "" {
		enforcer, err = casbin.NewEnforcer(cfg.AccessControl.Model, cfg.AccessControl.Policy)
		if err != nil {
			return nil, fmt.Errorf("failed to load access control policy: %w", err)
		}
		zap.L().Info("[Policy] loaded access control from files", zap.String("model", cfg.AccessControl.Model))
		return &casbinPolicy{enforcer: enforcer}, nil
	}

	m, err := model.NewModelFromString(builtinModel)
	if err != nil {
		return nil, err
	}
	enforcer, err = casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	if _, err := enforcer.AddPolicies(builtinPolicies); err != nil {
		return nil, err
	}
	if _, err := enforcer.AddGroupingPolicy(string(auth.RoleAdmin), string(auth.RoleUser)); err != nil {
		return nil, err
	}
	return &casbinPolicy{enforcer: enforcer}, nil
}

func (c *casbinPolicy) Allow(p auth.Principal, object, action string) (bool, error) {
	return c.enforcer.Enforce(string(p.Role), object, action)
}
