package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/linkdeck/internal/auth"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/database"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/identities"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/oauth"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testSigningSecret = "server-test-signing-secret"
	testCookieName    = "linkdeck_session"
	testPassword      = "correct horse battery"
)

type testServer struct {
	handler  http.Handler
	accounts *users.Service
	issuer   *auth.SessionIssuer
	logs     *observer.ObservedLogs
}

func newTestServer(t *testing.T, providers ...oauth.Provider) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "server.db"), logger)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	accounts, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		t.Fatalf("failed to create users service: %v", err)
	}
	summaries, err := identities.NewBuilder(accounts)
	if err != nil {
		t.Fatalf("failed to create summary builder: %v", err)
	}
	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{SigningSecret: []byte(testSigningSecret)})
	if err != nil {
		t.Fatalf("failed to create session issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to create session validator: %v", err)
	}
	states, err := auth.NewStateCodec(auth.StateCodecConfig{SigningSecret: []byte(testSigningSecret)})
	if err != nil {
		t.Fatalf("failed to create state codec: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Accounts:  accounts,
		Summaries: summaries,
		Sessions:  issuer,
		Validator: validator,
		States:    states,
		Providers: oauth.NewRegistry(providers...),
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &testServer{handler: handler, accounts: accounts, issuer: issuer, logs: logs}
}

func (s *testServer) createUser(t *testing.T, request users.NewUserRequest) users.User {
	t.Helper()
	user, err := s.accounts.CreateUser(context.Background(), request)
	if err != nil {
		t.Fatalf("failed to create user %s: %v", request.Username, err)
	}
	return user
}

func (s *testServer) link(t *testing.T, user users.User, provider users.Provider, uid, login string) {
	t.Helper()
	profile := users.Profile{Provider: provider, UID: uid, Login: login, ProfileURL: "https://example.com/" + login}
	if _, err := s.accounts.ResolveOAuthUser(context.Background(), profile, user.ID); err != nil {
		t.Fatalf("failed to link %s: %v", provider, err)
	}
}

func (s *testServer) sessionCookie(t *testing.T, user users.User) *http.Cookie {
	t.Helper()
	token, _, err := s.issuer.Issue(user.ID, user.Username)
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}
	return &http.Cookie{Name: testCookieName, Value: token}
}

func (s *testServer) do(request *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s *testServer) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, http.NoBody), cookies...)
}

func (s *testServer) postForm(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(request, cookies...)
}

func responseCookie(recorder *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

type stubProvider struct {
	name         users.Provider
	profile      users.Profile
	exchangeErr  error
	seenCode     string
	seenVerifier string
}

func (p *stubProvider) Name() users.Provider {
	return p.name
}

func (p *stubProvider) AuthCodeURL(state, verifier string) string {
	return "https://provider.example.com/authorize?state=" + url.QueryEscape(state)
}

func (p *stubProvider) Exchange(_ context.Context, code, verifier string) (users.Profile, error) {
	p.seenCode = code
	p.seenVerifier = verifier
	if p.exchangeErr != nil {
		return users.Profile{}, p.exchangeErr
	}
	profile := p.profile
	profile.Provider = p.name
	return profile, nil
}
