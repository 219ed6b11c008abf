package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/linkdeck/internal/auth"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/identities"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/oauth"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	loginPath       = "/login/"
	dashboardPath   = "/dashboard/"
	settingsPath    = "/settings/"
	stateCookieName = "linkdeck_oauth_state"
)

var (
	errMissingAccounts  = errors.New("account service dependency required")
	errMissingSummaries = errors.New("summary builder dependency required")
	errMissingIssuer    = errors.New("session issuer dependency required")
	errMissingValidator = errors.New("session validator dependency required")
	errMissingStates    = errors.New("oauth state codec dependency required")
)

// AccountService is the account and identity management the handlers rely on.
type AccountService interface {
	Authenticate(ctx context.Context, username, password string) (users.User, error)
	GetUser(ctx context.Context, userID string) (users.User, error)
	ListUsers(ctx context.Context) ([]users.User, error)
	ListIdentities(ctx context.Context, userID string) ([]users.LinkedIdentity, error)
	ResolveOAuthUser(ctx context.Context, profile users.Profile, currentUserID string) (users.User, error)
	DisconnectIdentity(ctx context.Context, user users.User, provider users.Provider) error
}

// SummaryBuilder computes the settings page identity summary.
type SummaryBuilder interface {
	Build(ctx context.Context, user users.User) (identities.Summary, error)
}

// SessionIssuer mints session tokens.
type SessionIssuer interface {
	Issue(userID, username string) (string, time.Time, error)
}

// SessionValidator reads and validates the session cookie of a request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Accounts       AccountService
	Summaries      SummaryBuilder
	Sessions       SessionIssuer
	Validator      SessionValidator
	States         *auth.StateCodec
	Providers      *oauth.Registry
	AllowedOrigins []string
	SecureCookie   bool
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin engine serving every page of the site.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Accounts == nil {
		return nil, errMissingAccounts
	}
	if deps.Summaries == nil {
		return nil, errMissingSummaries
	}
	if deps.Sessions == nil {
		return nil, errMissingIssuer
	}
	if deps.Validator == nil {
		return nil, errMissingValidator
	}
	if deps.States == nil {
		return nil, errMissingStates
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.SetHTMLTemplate(templates)
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	if len(deps.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(deps.AllowedOrigins))
	}

	handler := &httpHandler{
		accounts:  deps.Accounts,
		summaries: deps.Summaries,
		sessions:  deps.Sessions,
		validator: deps.Validator,
		states:    deps.States,
		providers: deps.Providers,
		sessionCookie: auth.CookieOptions{
			Name:   deps.Validator.CookieName(),
			Secure: deps.SecureCookie,
		},
		stateCookie: auth.CookieOptions{
			Name:   stateCookieName,
			Secure: deps.SecureCookie,
		},
		logger: logger,
	}

	router.NoRoute(func(c *gin.Context) {
		handler.renderError(c, http.StatusNotFound, "The page you requested does not exist.")
	})
	router.GET("/healthz", handler.handleHealth)

	site := router.Group("/")
	site.Use(handler.loadSession)
	site.GET("/", handler.handleHome)
	site.GET(loginPath, handler.handleLoginForm)
	site.POST(loginPath, handler.handleLogin)
	site.GET("/logout/", handler.handleLogout)
	site.POST("/logout/", handler.handleLogout)
	site.GET("/oauth/login/:provider/", handler.handleOAuthBegin)
	site.GET("/oauth/complete/:provider/", handler.handleOAuthComplete)

	protected := site.Group("/")
	protected.Use(handler.requireSession)
	protected.GET(dashboardPath, handler.handleDashboard)
	protected.GET(settingsPath, handler.handleSettings)
	protected.POST("/oauth/disconnect/:provider/", handler.handleOAuthDisconnect)

	admin := protected.Group("/admin")
	admin.Use(handler.requireStaff)
	admin.GET("/", handler.handleAdminUsers)
	admin.GET("/users/:id/", handler.handleAdminUser)

	return router, nil
}

type httpHandler struct {
	accounts      AccountService
	summaries     SummaryBuilder
	sessions      SessionIssuer
	validator     SessionValidator
	states        *auth.StateCodec
	providers     *oauth.Registry
	sessionCookie auth.CookieOptions
	stateCookie   auth.CookieOptions
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
