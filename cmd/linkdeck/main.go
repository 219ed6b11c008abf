package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/linkdeck/internal/auth"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/config"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/database"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/identities"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/logging"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/oauth"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/server"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const providerHTTPTimeout = 15 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "linkdeck",
		Short: "Linkdeck account and linked identity site",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newUsersCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("public-url", defaults.GetString("http.public_url"), "Public base URL used for OAuth redirects")
	cmd.PersistentFlags().StringSlice("allowed-origins", defaults.GetStringSlice("http.allowed_origins"), "Origins allowed by CORS")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Session lifetime in minutes")
	cmd.PersistentFlags().Bool("secure-cookie", defaults.GetBool("session.secure_cookie"), "Mark cookies Secure (HTTPS only)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.public_url", "public-url")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "session.secure_cookie", "secure-cookie")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("linkdeck")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	accounts, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: users.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	summaries, err := identities.NewBuilder(accounts)
	if err != nil {
		return err
	}

	signingSecret := []byte(appConfig.SigningSecret)
	sessions, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: signingSecret,
		TTL:           appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: signingSecret,
		CookieName:    appConfig.CookieName,
	})
	if err != nil {
		return err
	}
	states, err := auth.NewStateCodec(auth.StateCodecConfig{SigningSecret: signingSecret})
	if err != nil {
		return err
	}

	credentials := make(map[users.Provider]oauth.Credentials, len(appConfig.OAuthClients))
	for name, client := range appConfig.OAuthClients {
		provider, err := users.ParseProvider(name)
		if err != nil {
			return err
		}
		credentials[provider] = oauth.Credentials{ClientID: client.ClientID, ClientSecret: client.ClientSecret}
	}
	providers, err := oauth.BuildRegistry(appConfig.PublicURL, credentials, &http.Client{Timeout: providerHTTPTimeout})
	if err != nil {
		return err
	}
	enabled := make([]string, 0, len(credentials))
	for _, name := range providers.Enabled() {
		enabled = append(enabled, name.String())
	}
	logger.Info("oauth providers configured", zap.Strings("enabled", enabled))

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Accounts:       accounts,
		Summaries:      summaries,
		Sessions:       sessions,
		Validator:      validator,
		States:         states,
		Providers:      providers,
		AllowedOrigins: appConfig.AllowedOrigins,
		SecureCookie:   appConfig.SecureCookie,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress), zap.String("public_url", appConfig.PublicURL))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
