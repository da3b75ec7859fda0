package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/solsticelabs/beacon/internal/auth"
	"github.com/solsticelabs/beacon/internal/config"
	"github.com/solsticelabs/beacon/internal/database"
	"github.com/solsticelabs/beacon/internal/identity"
	"github.com/solsticelabs/beacon/internal/logging"
	"github.com/solsticelabs/beacon/internal/origins"
	"github.com/solsticelabs/beacon/internal/server"
	"github.com/solsticelabs/beacon/internal/subject"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "beacon-api",
		Short: "Beacon identity provider backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Provision a demo client, role and user in the identity store",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context())
		},
	}
	rootCmd.AddCommand(seedCmd)

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Access token signing secret (overrides env)")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Access token TTL in minutes")
	cmd.PersistentFlags().Bool("cors-allow-all", defaults.GetBool("cors.allow_all"), "Allow every origin, bypassing the client allow list")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "token.signing_secret", "signing-secret")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "cors.allow_all", "cors-allow-all")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
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

	logger, err := logging.NewLogger(appConfig.LogLevel)
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

	store, err := identity.NewStore(identity.StoreConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	resolver, err := subject.NewResolver(subject.ResolverConfig{
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	originPolicy, err := origins.NewPolicy(ctx, origins.PolicyConfig{
		Store:    store,
		Logger:   logger,
		AllowAll: appConfig.CorsAllowAll,
	})
	if err != nil {
		return err
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})

	var externalVerifier server.ExternalVerifier
	if appConfig.ExternalEnabled {
		verifier, err := auth.NewProviderVerifier(auth.ProviderVerifierConfig{
			Provider:       appConfig.ExternalConfig.Provider,
			Audience:       appConfig.ExternalConfig.Audience,
			JWKSURL:        appConfig.ExternalConfig.JWKSURL,
			AllowedIssuers: appConfig.ExternalConfig.Issuers,
			Logger:         logger,
		})
		if err != nil {
			return err
		}
		externalVerifier = verifier
		logger.Info("federated login enabled", zap.String("provider", verifier.Provider()))
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Resolver:         resolver,
		TokenManager:     tokenManager,
		OriginPolicy:     originPolicy,
		ExternalVerifier: externalVerifier,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runSeed(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
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

	store, err := identity.NewStore(identity.StoreConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	client := identity.Client{
		ClientID:   "beacon-spa",
		ClientName: "Beacon single page app",
		Enabled:    true,
	}
	if err := store.CreateClient(ctx, &client, "https://app.beacon.local", "http://localhost:5173"); err != nil {
		return err
	}

	role := identity.Role{Name: "admin"}
	if err := store.CreateRole(ctx, &role); err != nil {
		return err
	}
	if err := store.AddRoleClaim(ctx, role.ID, "permission", "users.manage"); err != nil {
		return err
	}

	user := identity.User{
		UserName:     "alice",
		Email:        "alice@beacon.local",
		PasswordHash: subject.HashPassword("alice"),
	}
	if err := store.CreateUser(ctx, &user); err != nil {
		return err
	}
	if err := store.AssignRole(ctx, user.ID, role.ID); err != nil {
		return err
	}
	if err := store.AddUserClaim(ctx, user.ID, subject.ClaimTypeEmail, user.Email); err != nil {
		return err
	}

	logger.Info("seed data created",
		zap.String("client_id", client.ClientID),
		zap.String("user", user.UserName),
		zap.String("subject_id", subject.SubjectID(user.ID)))
	return nil
}
