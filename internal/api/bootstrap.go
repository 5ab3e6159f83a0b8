package api

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/talos-license/talos/internal/auth"
	"github.com/talos-license/talos/internal/store"
)

// EnsureBootstrapToken seeds the very first admin credential. When the
// store holds no API tokens and a bootstrap value is configured, one
// wildcard-scope token is created whose hash is the SHA-256 of that
// value. Once any token exists the bootstrap value is ignored.
func EnsureBootstrapToken(ctx context.Context, st store.Store, bootstrapToken string) error {
	if bootstrapToken == "" {
		return nil
	}

	hasTokens, err := st.HasAnyAPITokens(ctx)
	if err != nil {
		return err
	}
	if hasTokens {
		log.Debug().Msg("API tokens already exist; ignoring bootstrap token")
		return nil
	}

	record := auth.NewTokenRecord("bootstrap", bootstrapToken, []string{auth.ScopeWildcard}, nil, "bootstrap", time.Now().UTC())
	if err := st.CreateAPIToken(ctx, record); err != nil {
		return err
	}
	log.Info().Str("token_id", record.ID).Msg("Bootstrap admin token created")
	return nil
}
