package store

import "github.com/kandev/agenthost/internal/db"

// Provide creates the session store on the shared database pool.
func Provide(pool *db.Pool) (Repository, func() error, error) {
	repo, err := newSQLRepository(pool.Writer(), pool.Reader(), false)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}
