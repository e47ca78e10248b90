package di

import (
	"context"
	"fmt"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
	repofirestore "github.com/hanko-field/storefront/internal/repositories/firestore"
	"github.com/hanko-field/storefront/internal/repositories/memory"
	"github.com/hanko-field/storefront/internal/repositories/postgres"
)

// OpenRegistry builds the repository backend selected by Config.Store.Driver.
func OpenRegistry(ctx context.Context, cfg config.Config) (repositories.Registry, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverFirestore:
		provider := pfirestore.NewProvider(pfirestore.Settings{
			ProjectID:    cfg.Firestore.ProjectID,
			EmulatorHost: cfg.Firestore.EmulatorHost,
		})
		store, err := repofirestore.NewStore(provider)
		if err != nil {
			return nil, fmt.Errorf("build firestore store: %w", err)
		}
		return store, nil
	case config.StoreDriverPostgres:
		store, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close(ctx)
			return nil, fmt.Errorf("ensure postgres schema: %w", err)
		}
		return store, nil
	case config.StoreDriverMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// NewAuthenticator builds the bearer-token authenticator selected by Config.Auth.Mode.
func NewAuthenticator(ctx context.Context, cfg config.Config) (*auth.Authenticator, error) {
	var verifier auth.TokenVerifier
	switch cfg.Auth.Mode {
	case config.AuthModeFirebase:
		firebase, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("build firebase verifier: %w", err)
		}
		verifier = firebase
	case config.AuthModeJWT:
		jwtVerifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
		if err != nil {
			return nil, fmt.Errorf("build jwt verifier: %w", err)
		}
		verifier = jwtVerifier
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
	return auth.NewAuthenticator(verifier), nil
}
