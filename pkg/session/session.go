// Package session handles DTE Insight authentication and the cached
// customer profile. A Session only exists after a successful login, so
// authenticated operations cannot be reached without one.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/puddly/dte-insight-extractor/pkg/client"
)

// ClientID is the DTE Insight tenant identifier in the login and lookup
// endpoint paths.
const ClientID = "17"

// Credentials are the account username and password. Supplied once at
// login, never mutated.
type Credentials struct {
	Username string
	Password string
}

// Site is one metered site on the account. Beyond the identifier its
// fields are opaque: the raw upstream record is preserved for output.
type Site struct {
	ID  int64
	Raw json.RawMessage
}

// UnmarshalJSON extracts the site identifier and keeps the full record.
func (s *Site) UnmarshalJSON(data []byte) error {
	var probe struct {
		ID int64 `json:"CustomerSiteID"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	s.ID = probe.ID
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits the upstream record unchanged.
func (s Site) MarshalJSON() ([]byte, error) {
	if s.Raw != nil {
		return s.Raw, nil
	}
	return json.Marshal(struct {
		ID int64 `json:"CustomerSiteID"`
	}{ID: s.ID})
}

// Profile is the customer profile returned by the lookup endpoint.
type Profile struct {
	FirstName  string `json:"FirstName"`
	LastName   string `json:"LastName"`
	CustomerID int64  `json:"CustomerID"`
	Sites      []Site `json:"CustomerSites"`
}

// Clone returns a defensive copy of the profile.
func (p Profile) Clone() Profile {
	out := p
	out.Sites = make([]Site, len(p.Sites))
	for i, site := range p.Sites {
		out.Sites[i] = Site{
			ID:  site.ID,
			Raw: append(json.RawMessage(nil), site.Raw...),
		}
	}
	return out
}

// loginRequest is the body of both the login and lookup calls. The
// upstream issues the token from /login and the profile from /lookup, so
// the credentials are intentionally sent twice.
type loginRequest struct {
	Username string `json:"Username"`
	Password string `json:"Password"`
}

// Session is an authenticated DTE Insight session: the authorization
// token (cached inside the client) plus the customer profile, both set
// exactly once at login.
type Session struct {
	client  *client.Client
	profile Profile
	logger  zerolog.Logger
}

// Login authenticates against the DTE Insight API and returns a Session.
// Any HTTP error from the login or lookup call is fatal: there is no
// session and no partial state on failure.
func Login(ctx context.Context, c *client.Client, creds Credentials, logger zerolog.Logger) (*Session, error) {
	body := loginRequest{Username: creds.Username, Password: creds.Password}

	logger.Info().Msg("Logging in")
	resp, err := c.PostJSON(ctx, "/login/"+ClientID, body)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	token := resp.Header.Get("Authorization")
	if token == "" {
		return nil, fmt.Errorf("login: no Authorization header in response")
	}
	c.SetToken(token)

	logger.Info().Msg("Loading customer info")
	resp, err = c.PostJSON(ctx, "/lookup/"+ClientID, body)
	if err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal(resp.Body, &profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	logger.Info().
		Str("first_name", profile.FirstName).
		Str("last_name", profile.LastName).
		Int64("customer_id", profile.CustomerID).
		Int("sites", len(profile.Sites)).
		Msg("Logged in")

	return &Session{
		client:  c,
		profile: profile,
		logger:  logger,
	}, nil
}

// Client returns the authenticated API client.
func (s *Session) Client() *client.Client {
	return s.client
}

// CustomerID returns the numeric customer identifier.
func (s *Session) CustomerID() int64 {
	return s.profile.CustomerID
}

// Profile returns a defensive copy of the cached customer profile. The
// cached copy remains the source of truth for downstream components.
func (s *Session) Profile() Profile {
	return s.profile.Clone()
}
