package app

import (
	"log/slog"

	"github.com/staffline/staffline/internal/directory"
	"github.com/staffline/staffline/internal/platform/cache"
	"github.com/staffline/staffline/internal/platform/db"
	"github.com/staffline/staffline/internal/rbac"
)

// RoleTableSource returns the configured role table source. A nil source makes
// the directory read roles from Postgres in the same transaction as staff.
func (c *Config) RoleTableSource() rbac.RoleSource {
	if c.RoleSource == RoleSourceDB {
		return nil
	}
	return rbac.FileRoleSource{Path: c.RoleTablePath}
}

// NewDirectoryStore builds the directory store used by both the API server
// and the worker.
func NewDirectoryStore(cfg *Config, conn db.Beginner, logger *slog.Logger, observer directory.ReloadObserver) *directory.Store {
	source := directory.PostgresSource{Conn: conn, Roles: cfg.RoleTableSource()}
	return directory.NewStore(source, logger, observer)
}

// Redis returns the connection options for the configured Redis database.
func (c *Config) Redis(clientName string) cache.Options {
	return cache.Options{Addr: c.RedisAddr, DB: c.RedisDB, ClientName: clientName}
}
