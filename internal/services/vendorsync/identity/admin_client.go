package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultCallTimeout = 4 * time.Second

// AdminConfig configures the HTTP admin client for the identity provider.
type AdminConfig struct {
	// BaseURL is the provider root, e.g. https://auth.internal.pinnity.app.
	BaseURL string
	// ServiceKey authenticates admin calls.
	ServiceKey string
	// CallTimeout caps every request; defaults to defaultCallTimeout.
	CallTimeout time.Duration
}

// AdminClient talks to the provider's admin user API. All failures are
// classified through the package taxonomy so callers never see raw
// transport errors.
type AdminClient struct {
	http *resty.Client
}

// NewAdminClient builds an admin API client.
func NewAdminClient(cfg AdminConfig) (*AdminClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("identity base url is required")
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if key := strings.TrimSpace(cfg.ServiceKey); key != "" {
		client.SetAuthToken(key)
	}
	return &AdminClient{http: client}, nil
}

type adminUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type adminUserList struct {
	Users []adminUser `json:"users"`
}

type adminError struct {
	Message string `json:"msg"`
	Error   string `json:"error"`
}

func (e adminError) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// CreateIdentity creates a remote identity and returns its id. The provider
// deduplicates by email; a duplicate response resolves to the existing id so
// replays never mint a second identity.
func (c *AdminClient) CreateIdentity(ctx context.Context, input CreateInput) (string, error) {
	const op = "create identity"

	body := map[string]any{
		"email":         input.Email,
		"email_confirm": true,
	}
	if input.Password != "" {
		body["password"] = input.Password
	}
	if input.Phone != "" {
		body["phone"] = input.Phone
		body["phone_confirm"] = input.PhoneVerified
	}

	var created adminUser
	var failure adminError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&created).
		SetError(&failure).
		Post("/admin/users")
	if err != nil {
		return "", Unavailable(op, err)
	}

	switch {
	case resp.StatusCode() == http.StatusOK || resp.StatusCode() == http.StatusCreated:
		if created.ID == "" {
			return "", Rejected(op, fmt.Errorf("provider returned no identity id"))
		}
		return created.ID, nil
	case isDuplicateEmail(resp.StatusCode(), failure.text()):
		return c.lookupByEmail(ctx, op, input.Email)
	default:
		return "", classifyStatus(op, resp.StatusCode(), failure.text())
	}
}

// lookupByEmail resolves the existing identity id after a duplicate-email
// create response.
func (c *AdminClient) lookupByEmail(ctx context.Context, op string, email string) (string, error) {
	var list adminUserList
	var failure adminError
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("email", email).
		SetResult(&list).
		SetError(&failure).
		Get("/admin/users")
	if err != nil {
		return "", Unavailable(op, err)
	}
	if resp.IsError() {
		return "", classifyStatus(op, resp.StatusCode(), failure.text())
	}
	for _, user := range list.Users {
		if strings.EqualFold(user.Email, email) {
			return user.ID, nil
		}
	}
	return "", Unavailable(op, fmt.Errorf("duplicate email %q reported but identity not listed", email))
}

// UpdateEmail sets the identity's email.
func (c *AdminClient) UpdateEmail(ctx context.Context, remoteID string, email string) error {
	return c.updateUser(ctx, "update email", remoteID, map[string]any{"email": email, "email_confirm": true})
}

// UpdatePhone sets the identity's phone.
func (c *AdminClient) UpdatePhone(ctx context.Context, remoteID string, phone string) error {
	return c.updateUser(ctx, "update phone", remoteID, map[string]any{"phone": phone, "phone_confirm": true})
}

// SetPassword replaces the identity's password.
func (c *AdminClient) SetPassword(ctx context.Context, remoteID string, password string) error {
	return c.updateUser(ctx, "set password", remoteID, map[string]any{"password": password})
}

// SetVerificationFlag mirrors the local approval state into provider
// metadata. Best effort by contract; callers treat failures as non-fatal.
func (c *AdminClient) SetVerificationFlag(ctx context.Context, remoteID string, verified bool) error {
	return c.updateUser(ctx, "set verification flag", remoteID, map[string]any{
		"app_metadata": map[string]any{"vendor_verified": verified},
	})
}

func (c *AdminClient) updateUser(ctx context.Context, op string, remoteID string, body map[string]any) error {
	if strings.TrimSpace(remoteID) == "" {
		return Rejected(op, fmt.Errorf("remote id is required"))
	}

	var failure adminError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetError(&failure).
		Put("/admin/users/" + remoteID)
	if err != nil {
		return Unavailable(op, err)
	}
	if resp.IsError() {
		return classifyStatus(op, resp.StatusCode(), failure.text())
	}
	return nil
}

// DeleteIdentity removes the remote identity. A missing identity surfaces as
// NotFound so callers can treat it as already deleted.
func (c *AdminClient) DeleteIdentity(ctx context.Context, remoteID string) error {
	const op = "delete identity"
	if strings.TrimSpace(remoteID) == "" {
		return Rejected(op, fmt.Errorf("remote id is required"))
	}

	var failure adminError
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&failure).
		Delete("/admin/users/" + remoteID)
	if err != nil {
		return Unavailable(op, err)
	}
	if resp.IsError() {
		return classifyStatus(op, resp.StatusCode(), failure.text())
	}
	return nil
}

func isDuplicateEmail(status int, message string) bool {
	if status != http.StatusUnprocessableEntity && status != http.StatusConflict {
		return false
	}
	lowered := strings.ToLower(message)
	return strings.Contains(lowered, "already") || strings.Contains(lowered, "registered") || strings.Contains(lowered, "exists")
}

// classifyStatus maps an HTTP status into the failure taxonomy: 404 means
// the identity vanished, 429 and 5xx are provider unavailability, and any
// other 4xx is a remote-side rejection.
func classifyStatus(op string, status int, message string) error {
	cause := fmt.Errorf("status %d", status)
	if message != "" {
		cause = fmt.Errorf("status %d: %s", status, message)
	}
	switch {
	case status == http.StatusNotFound:
		return NotFound(op)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return Unavailable(op, cause)
	default:
		return Rejected(op, cause)
	}
}

var _ Client = (*AdminClient)(nil)
