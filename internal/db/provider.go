package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/kandev/agenthost/internal/common/config"
	"github.com/kandev/agenthost/internal/common/logger"
	"github.com/kandev/agenthost/internal/db/dialect"
)

// Provide opens the configured database and returns its pool with a cleanup
// function.
func Provide(cfg config.DatabaseConfig, log *logger.Logger) (*Pool, func() error, error) {
	switch cfg.Driver {
	case "", "sqlite":
		writer, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		reader, err := OpenSQLiteReader(cfg.Path)
		if err != nil {
			_ = writer.Close()
			return nil, nil, fmt.Errorf("failed to open sqlite reader: %w", err)
		}
		pool := NewPool(sqlx.NewDb(writer, dialect.SQLite3), sqlx.NewDb(reader, dialect.SQLite3))
		log.Info("database initialized", zap.String("db_driver", "sqlite"), zap.String("db_path", cfg.Path))
		cleanup := func() error {
			_, _ = writer.Exec("PRAGMA optimize")
			return pool.Close()
		}
		return pool, cleanup, nil

	case "postgres":
		conn, err := OpenPostgres(cfg.DSN, cfg.MaxConns, cfg.MinConns)
		if err != nil {
			return nil, nil, err
		}
		sdb := sqlx.NewDb(conn, dialect.PGX)
		pool := NewPool(sdb, sdb)
		log.Info("database initialized", zap.String("db_driver", "postgres"))
		return pool, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
