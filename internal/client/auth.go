package client

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/example/facesaas-client/internal/apierr"
	"github.com/example/facesaas-client/internal/logging"
	"github.com/example/facesaas-client/internal/model"
	"github.com/example/facesaas-client/internal/transport"
)

// AuthClient signs the user in and out. It never falls back to simulation.
type AuthClient struct {
	core *core
}

// Login exchanges credentials for a token and stores it in the session.
// Failing to persist the token is logged; the in-memory session still holds
// it, so the login succeeds.
func (a *AuthClient) Login(ctx context.Context, username, password string) (*model.Token, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, apierr.Validation("username and password are required", nil)
	}
	req := transport.Request{
		Method:   http.MethodPost,
		Path:     "/auth/login",
		Encoding: transport.EncodingForm,
		Form:     map[string]string{"username": username, "password": password},
		Public:   true,
	}
	var token model.Token
	if err := a.core.call(ctx, "login", req, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, apierr.New(apierr.KindUnknown, "login response did not include a token")
	}
	a.store(ctx, "login", token.AccessToken)
	return &token, nil
}

// Register creates an account. When the service answers with a token the
// user is signed in as well.
func (a *AuthClient) Register(ctx context.Context, email, password string) (*model.Token, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apierr.Validation("email and password are required", nil)
	}
	req := transport.Request{
		Method:   http.MethodPost,
		Path:     "/auth/register",
		Encoding: transport.EncodingForm,
		Form:     map[string]string{"email": email, "password": password},
		Public:   true,
	}
	var token model.Token
	if err := a.core.call(ctx, "register", req, &token); err != nil {
		return nil, err
	}
	if token.AccessToken != "" {
		a.store(ctx, "register", token.AccessToken)
	}
	return &token, nil
}

// Logout forgets the credential locally. No request is sent.
func (a *AuthClient) Logout(ctx context.Context) error {
	if err := a.core.session.Clear(ctx); err != nil {
		return apierr.Wrap(apierr.KindUnknown, "could not clear session",
			logging.NewOperationError("logout", "", err))
	}
	return nil
}

// SignedIn reports whether a usable credential is held.
func (a *AuthClient) SignedIn() bool {
	_, ok := a.core.session.Token()
	return ok
}

func (a *AuthClient) store(ctx context.Context, operation, token string) {
	if err := a.core.session.Set(ctx, token); err != nil {
		logging.WithOperation(a.core.logger, operation, "").
			Warn("token kept in memory only", zap.Error(err))
	}
}
