// Package identity talks to the upstream identity provider. It is only used
// as a fallback when the session cache misses: one register/refresh round
// trip bounded by an explicit timeout.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/kiosk-backend/pkg/auth/session"
	"github.com/angelmondragon/kiosk-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/kiosk-backend/pkg/errors"
)

// Client calls the provider's session registration endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient validates the configured base URL and builds the client.
func NewClient(cfg config.IdentityConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("identity base url is required")
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{},
	}, nil
}

type registerRequest struct {
	Token     string `json:"token"`
	TimeoutMS int64  `json:"timeout_ms"`
}

type registerResponse struct {
	PersonID string `json:"person_id"`
	OrgGuid  string `json:"org_guid"`
	Role     string `json:"role"`
	Name     string `json:"name,omitempty"`
}

// RegisterSession asks the provider to validate the token and hand back the
// profile it maps to. Implements session.Registrar.
func (c *Client) RegisterSession(ctx context.Context, token string, timeout time.Duration) (*session.Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token is required")
	}

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := json.Marshal(registerRequest{Token: token, TimeoutMS: timeout.Milliseconds()})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding register request")
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/session/register", bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building register request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "identity provider unreachable")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "identity provider rejected token")
	default:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("identity provider returned %d", resp.StatusCode))
	}

	var payload registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding register response")
	}
	return payload.toSession()
}

func (r registerResponse) toSession() (*session.Session, error) {
	sess := &session.Session{
		OrgGuid: r.OrgGuid,
		Name:    r.Name,
	}
	if strings.TrimSpace(r.OrgGuid) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "register response missing org guid")
	}
	if err := sess.PersonID.UnmarshalText([]byte(r.PersonID)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "register response person id")
	}
	role, err := parseRole(r.Role)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "register response role")
	}
	sess.Role = role
	return sess, nil
}
