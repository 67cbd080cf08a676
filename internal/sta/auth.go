package sta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
)

// Auth modes for Credentials.Mode.
const (
	AuthLogin = "login"
	AuthBasic = "basic"
)

// Credentials describes how to authenticate against the upstream. A static
// Token wins; otherwise Username/Password are used either for the password
// grant at {endpoint}/Login or as HTTP basic auth.
type Credentials struct {
	Token    string
	Username string
	Password string
	Mode     string
}

// Authorize attaches credentials to rc. With the login mode the token is
// fetched lazily before the first request and dropped again when the
// upstream answers 401, so the next harvest logs in afresh.
func Authorize(rc *resty.Client, endpoint string, creds Credentials) error {
	switch {
	case creds.Token != "":
		rc.SetAuthToken(creds.Token)
		return nil
	case creds.Username == "" && creds.Password == "":
		return nil
	case creds.Username == "" || creds.Password == "":
		return errors.New("both username and password are required for credential login")
	case creds.Mode == AuthBasic:
		rc.SetBasicAuth(creds.Username, creds.Password)
		return nil
	case creds.Mode == "" || creds.Mode == AuthLogin:
	default:
		return fmt.Errorf("unknown auth mode %q", creds.Mode)
	}

	src := &tokenSource{
		parent:   rc,
		endpoint: endpoint,
		username: creds.Username,
		password: creds.Password,
	}
	rc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		token, err := src.Token(req.Context())
		if err != nil {
			return err
		}
		req.SetAuthToken(token)
		return nil
	})
	rc.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		if resp.StatusCode() == http.StatusUnauthorized {
			src.Reset()
		}
		return nil
	})
	return nil
}

type tokenSource struct {
	parent   *resty.Client
	endpoint string
	username string
	password string

	mu    sync.Mutex
	login *resty.Client
	token string
}

func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		return s.token, nil
	}
	if s.login == nil {
		s.login = resty.New().SetTimeout(s.parent.GetClient().Timeout)
	}
	token, err := Login(ctx, s.login, s.endpoint, s.username, s.password)
	if err != nil {
		return "", err
	}
	s.token = token
	return token, nil
}

func (s *tokenSource) Reset() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// Login exchanges username and password for an access token using the
// password grant at {endpoint}/Login.
func Login(ctx context.Context, rc *resty.Client, endpoint, username, password string) (string, error) {
	loginURL := strings.TrimRight(endpoint, "/") + "/Login"
	resp, err := rc.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username":   username,
			"password":   password,
			"grant_type": "password",
		}).
		Post(loginURL)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}

	code := resp.StatusCode()
	if code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden {
		return "", &models.AuthenticationError{URL: loginURL, Status: code}
	}
	if resp.IsError() {
		return "", fmt.Errorf("login: unexpected status %s", resp.Status())
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", &models.AuthenticationError{URL: loginURL, Err: errors.New("login succeeded but no access_token was returned")}
	}
	return payload.AccessToken, nil
}
