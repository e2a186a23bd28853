package db

import (
	"context"
	"fmt"

	"github.com/jrschumacher/authsync/internal/config"
	"github.com/jrschumacher/authsync/internal/logger"
	"github.com/jrschumacher/authsync/pkg/auth/session"
)

// OpenSessionStorage opens cfg.DatabaseURL and makes sure the auth_sessions
// table exists. Closing the storage closes the database.
func OpenSessionStorage(ctx context.Context, cfg *config.Config) (*session.SQLStorage, error) {
	db, driver, err := OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}

	store := session.NewSQLStorage(db, Dialect(driver))
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare session storage: %w", err)
	}

	logger.Info("Session storage ready", "driver", string(driver))
	return store, nil
}
