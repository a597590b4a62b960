package session

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rs/zerolog"

	"github.com/puddly/dte-insight-extractor/internal/testutil"
	"github.com/puddly/dte-insight-extractor/pkg/client"
)

const profileJSON = `{
	"FirstName": "Jane",
	"LastName": "Doe",
	"CustomerID": 1234,
	"CustomerSites": [
		{"CustomerSiteID": 10, "SiteName": "Home"},
		{"CustomerSiteID": 20, "SiteName": "Garage"}
	]
}`

func TestLogin(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetLogin(ClientID, "token-xyz")
	mock.SetLookup(ClientID, profileJSON)

	c := client.New(client.Config{BaseURL: mock.URL(), PacingDelay: -1})

	sess, err := Login(context.Background(), c, Credentials{Username: "jane", Password: "hunter2"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if !c.HasToken() {
		t.Error("client has no token after login")
	}

	if sess.CustomerID() != 1234 {
		t.Errorf("CustomerID() = %d, want 1234", sess.CustomerID())
	}

	profile := sess.Profile()
	if profile.FirstName != "Jane" || profile.LastName != "Doe" {
		t.Errorf("profile name = %s %s, want Jane Doe", profile.FirstName, profile.LastName)
	}
	if len(profile.Sites) != 2 {
		t.Fatalf("len(Sites) = %d, want 2", len(profile.Sites))
	}
	if profile.Sites[0].ID != 10 || profile.Sites[1].ID != 20 {
		t.Errorf("site IDs = %d, %d, want 10, 20", profile.Sites[0].ID, profile.Sites[1].ID)
	}

	// Both endpoints were called exactly once.
	if got := mock.GetPathCount("/login/" + ClientID); got != 1 {
		t.Errorf("login calls = %d, want 1", got)
	}
	if got := mock.GetPathCount("/lookup/" + ClientID); got != 1 {
		t.Errorf("lookup calls = %d, want 1", got)
	}
}

func TestLogin_ProfileCopyIsDefensive(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetLogin(ClientID, "t")
	mock.SetLookup(ClientID, profileJSON)

	c := client.New(client.Config{BaseURL: mock.URL(), PacingDelay: -1})

	sess, err := Login(context.Background(), c, Credentials{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	profile := sess.Profile()
	profile.Sites[0].ID = 999
	profile.Sites = profile.Sites[:1]

	again := sess.Profile()
	if len(again.Sites) != 2 || again.Sites[0].ID != 10 {
		t.Errorf("cached profile mutated through the returned copy: %+v", again.Sites)
	}
}

func TestLogin_MissingAuthorizationHeader(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetResponse("/login/"+ClientID, testutil.MockResponse{StatusCode: http.StatusOK})

	c := client.New(client.Config{BaseURL: mock.URL(), PacingDelay: -1})

	_, err := Login(context.Background(), c, Credentials{}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for missing Authorization header")
	}
	if c.HasToken() {
		t.Error("client has a token after failed login")
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetResponse("/login/"+ClientID, testutil.MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"error": "invalid credentials"}`,
	})

	c := client.New(client.Config{BaseURL: mock.URL(), PacingDelay: -1})

	_, err := Login(context.Background(), c, Credentials{Username: "jane", Password: "wrong"}, zerolog.Nop())

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *client.APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
	}

	// Lookup must not be attempted after a failed login.
	if got := mock.GetPathCount("/lookup/" + ClientID); got != 0 {
		t.Errorf("lookup calls = %d, want 0", got)
	}
}

func TestSite_MarshalRoundTrip(t *testing.T) {
	raw := `{"CustomerSiteID":10,"SiteName":"Home","Meter":"E-123"}`

	var site Site
	if err := site.UnmarshalJSON([]byte(raw)); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	if site.ID != 10 {
		t.Errorf("ID = %d, want 10", site.ID)
	}

	out, err := site.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(out) != raw {
		t.Errorf("MarshalJSON() = %s, want the original record", out)
	}
}
