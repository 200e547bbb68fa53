package client

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/example/facesaas-client/internal/apierr"
	"github.com/example/facesaas-client/internal/model"
	"github.com/example/facesaas-client/internal/transport"
)

// UserClient manages the signed-in account. Account operations are never
// simulated.
type UserClient struct {
	core *core
}

func (u *UserClient) Profile(ctx context.Context) (*model.Profile, error) {
	var profile model.Profile
	req := transport.Request{Method: http.MethodGet, Path: "/users/profile"}
	if err := u.core.call(ctx, "get_profile", req, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile changes the non-nil fields of upd.
func (u *UserClient) UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (*model.Profile, error) {
	if upd.Email == nil && upd.FullName == nil {
		return nil, apierr.Validation("nothing to update", nil)
	}
	if upd.Email != nil && strings.TrimSpace(*upd.Email) == "" {
		return nil, apierr.Validation("email cannot be empty", nil)
	}
	req := transport.Request{
		Method:   http.MethodPatch,
		Path:     "/users/profile",
		Encoding: transport.EncodingJSON,
		JSON:     upd,
	}
	var profile model.Profile
	if err := u.core.call(ctx, "update_profile", req, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateThreshold sets the default match threshold of the account.
func (u *UserClient) UpdateThreshold(ctx context.Context, threshold float64) (*model.ThresholdUpdate, error) {
	if err := validThreshold(threshold); err != nil {
		return nil, err
	}
	req := transport.Request{
		Method:   http.MethodPatch,
		Path:     "/users/threshold",
		Encoding: transport.EncodingJSON,
		JSON:     map[string]float64{"threshold": threshold},
	}
	var update model.ThresholdUpdate
	if err := u.core.call(ctx, "update_threshold", req, &update); err != nil {
		return nil, err
	}
	return &update, nil
}

func (u *UserClient) ChangePassword(ctx context.Context, current, next string) error {
	if current == "" || next == "" {
		return apierr.Validation("current and new password are required", nil)
	}
	req := transport.Request{
		Method:   http.MethodPost,
		Path:     "/users/change-password",
		Encoding: transport.EncodingJSON,
		JSON:     model.PasswordChange{CurrentPassword: current, NewPassword: next},
	}
	return u.core.call(ctx, "change_password", req, nil)
}

// DeleteAccount removes the account and signs out.
func (u *UserClient) DeleteAccount(ctx context.Context) error {
	req := transport.Request{Method: http.MethodDelete, Path: "/users/profile"}
	if err := u.core.call(ctx, "delete_account", req, nil); err != nil {
		return err
	}
	if err := u.core.session.Clear(context.WithoutCancel(ctx)); err != nil {
		u.core.logger.Warn("failed to clear session after account deletion", zap.Error(err))
	}
	return nil
}

func (u *UserClient) UsageStats(ctx context.Context) (*model.UsageStats, error) {
	var stats model.UsageStats
	req := transport.Request{Method: http.MethodGet, Path: "/users/usage"}
	if err := u.core.call(ctx, "usage_stats", req, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (u *UserClient) APIKey(ctx context.Context) (*model.APIKey, error) {
	var key model.APIKey
	req := transport.Request{Method: http.MethodGet, Path: "/users/api-key"}
	if err := u.core.call(ctx, "get_api_key", req, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// RegenerateAPIKey invalidates the current key and returns a new one.
func (u *UserClient) RegenerateAPIKey(ctx context.Context) (*model.APIKey, error) {
	var key model.APIKey
	req := transport.Request{Method: http.MethodPost, Path: "/users/api-key/regenerate"}
	if err := u.core.call(ctx, "regenerate_api_key", req, &key); err != nil {
		return nil, err
	}
	return &key, nil
}
