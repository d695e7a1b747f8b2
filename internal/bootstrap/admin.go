package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/arcade-auth/internal/config"
	"github.com/smallbiznis/arcade-auth/internal/domain"
	"github.com/smallbiznis/arcade-auth/internal/password"
	"github.com/smallbiznis/arcade-auth/internal/repository"
)

// EnsureAdmin creates a default admin identity for dev/e2e if configured
// and missing. A no-op when ADMIN_EMAIL is unset.
func EnsureAdmin(lc fx.Lifecycle, cfg config.Config, identities repository.IdentityRepository, hasher *password.Hasher, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureAdmin(ctx, cfg, identities, hasher, node, logger)
		},
	})
}

func ensureAdmin(ctx context.Context, cfg config.Config, identities repository.IdentityRepository, hasher *password.Hasher, node *snowflake.Node, logger *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" {
		return nil
	}
	if strings.TrimSpace(cfg.AdminPassword) == "" {
		return fmt.Errorf("ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}

	if _, err := identities.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("bootstrap lookup identity: %w", err)
	}

	hashed, err := hasher.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}

	created, err := identities.Create(ctx, domain.Identity{
		ID:           node.Generate().Int64(),
		Email:        email,
		PasswordHash: hashed,
		DisplayName:  "Admin",
	})
	if errors.Is(err, repository.ErrDuplicateEmail) {
		// A replica won the race; nothing to do.
		return nil
	}
	if err != nil {
		return fmt.Errorf("bootstrap create identity: %w", err)
	}

	logger.Info("admin identity created", zap.Int64("identity_id", created.ID), zap.String("email", email))
	return nil
}
