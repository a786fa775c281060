// Command server runs the PulsePlan authorization server.
package main

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	echoapi "go.pulseplan.io/auth/api/echo"
	"go.pulseplan.io/auth/cache"
	redistore "go.pulseplan.io/auth/cache/redis"
	"go.pulseplan.io/auth/config"
	"go.pulseplan.io/auth/internal/federation"
	"go.pulseplan.io/auth/internal/metrics"
	"go.pulseplan.io/auth/internal/security"
	"go.pulseplan.io/auth/mongodb"
	"go.pulseplan.io/auth/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("configured_level", cfg.LogLevel).Msg("Invalid log level in config, defaulting to info")
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
}

//nolint:funlen
func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoClient, err := mongodb.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer mongodb.Disconnect(context.Background(), mongoClient)
	db := mongoClient.Database(cfg.MongoDBName)

	codeRepo, err := mongodb.NewAuthCodeRepository(ctx, db)
	if err != nil {
		return err
	}
	tokenRepo, err := mongodb.NewTokenRepository(ctx, db)
	if err != nil {
		return err
	}
	eventRepo := mongodb.NewSecurityEventRepository(db)
	clientRepo := mongodb.NewClientRepository(db)
	userRepo, err := mongodb.NewUserRepository(ctx, db)
	if err != nil {
		return err
	}
	identityRepo, err := mongodb.NewFederatedIdentityRepository(ctx, db)
	if err != nil {
		return err
	}

	tokenCache, err := buildTokenCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer tokenCache.Close()

	ipTracker := security.NewLockoutTracker(cfg.LockoutWindow, int(cfg.LockoutThreshold))
	defer ipTracker.Close()

	states := security.NewStateTokenService(cfg.StateTTL)
	defer states.Close()

	signer, err := buildSigner(cfg)
	if err != nil {
		return err
	}

	events := services.NewSecurityEventService(eventRepo, ipTracker, cfg.LockoutWindow, int(cfg.LockoutThreshold))
	authCodes := services.NewAuthCodeService(codeRepo, clientRepo, events, cfg.AuthCodeTTL)
	tokens := services.NewTokenService(
		tokenRepo, clientRepo, userRepo, authCodes, events,
		tokenCache, signer, cfg.IssuerURL,
		services.TokenConfig{
			AccessTokenTTL:  cfg.AccessTokenTTL,
			RefreshTokenTTL: cfg.RefreshTokenTTL,
			IDTokenTTL:      cfg.AccessTokenTTL,
		},
	)

	providers := federation.NewRegistry()
	registerProviders(providers, cfg)
	callbackBase := cfg.FederationCallbackBaseURL
	if callbackBase == "" {
		callbackBase = cfg.IssuerURL + "/auth/federation"
	}
	fed := services.NewFederationService(
		providers, states, userRepo, identityRepo, tokens, events,
		callbackBase, cfg.FederationClientID,
	)

	go runJanitor(ctx, codeRepo, tokenRepo)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics.Register(registry)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	api := echoapi.NewOAuth2API(
		authCodes, tokens, fed, signer,
		echoapi.NewBearerSessionResolver(tokens),
		cfg.IssuerURL, cfg.LoginURL,
	)
	api.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("Authorization server listening")
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// runJanitor periodically removes expired authorization codes and tokens
// so the collections do not accumulate dead rows between restarts.
func runJanitor(ctx context.Context, codes *mongodb.AuthCodeRepository, tokens *mongodb.TokenRepository) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := codes.DeleteExpiredAuthCodes(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to clean up expired authorization codes")
			}
			if err := tokens.DeleteExpiredTokens(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to clean up expired tokens")
			}
		}
	}
}

func buildTokenCache(ctx context.Context, cfg config.Config) (cache.TokenStore, error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryTokenStore(cfg.AccessTokenTTL), nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("Redis token cache initialized")
	return redistore.NewTokenStore(client, "pulseauth"), nil
}

// buildSigner loads the RSA signing key when configured, otherwise
// falls back to HS256 with the shared secret.
func buildSigner(cfg config.Config) (*services.TokenSigner, error) {
	signer := services.NewTokenSigner()

	if cfg.SigningKeyPath != "" {
		key, err := loadRSAPrivateKey(cfg.SigningKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load signing key: %w", err)
		}
		signer.AddRSASigner(cfg.SigningKeyID, key)
		return signer, nil
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("either signing_key_path or jwt_secret must be configured")
	}
	signer.AddHMACSigner(cfg.SigningKeyID, cfg.JWTSecret)
	return signer, nil
}

func loadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("no PEM block found in signing key file")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("signing key is not an RSA private key")
	}
	return key, nil
}

func registerProviders(registry *federation.Registry, cfg config.Config) {
	if cfg.GoogleClientID != "" {
		google, err := federation.NewGoogleProvider(federation.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Google federation disabled")
		} else {
			registry.Register(google)
		}
	}
	if cfg.GitHubClientID != "" {
		github, err := federation.NewGitHubProvider(federation.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
		})
		if err != nil {
			log.Warn().Err(err).Msg("GitHub federation disabled")
		} else {
			registry.Register(github)
		}
	}
}
