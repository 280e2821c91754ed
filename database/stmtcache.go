package database

import (
	"database/sql"
	"errors"
	"sync"
)

var ErrCacheClosed = errors.New("statement cache closed")

// StmtCache maps a query string to its prepared statement.
// Statements live until Clear.
type StmtCache struct {
	db *sql.DB

	mu     sync.Mutex
	m      map[string]*sql.Stmt
	closed bool
}

func NewStmtCache(db *sql.DB) *StmtCache {
	return &StmtCache{db: db, m: make(map[string]*sql.Stmt)}
}

func (sc *StmtCache) Prepare(query string) (*sql.Stmt, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.closed {
		return nil, ErrCacheClosed
	}
	if stmt, ok := sc.m[query]; ok {
		return stmt, nil
	}
	stmt, err := sc.db.Prepare(query)
	if err != nil {
		return nil, err
	}
	sc.m[query] = stmt
	return stmt, nil
}

// Exec prepares query once and executes it.
func (sc *StmtCache) Exec(query string, args ...interface{}) (sql.Result, error) {
	stmt, err := sc.Prepare(query)
	if err != nil {
		return nil, err
	}
	return stmt.Exec(args...)
}

// Query prepares query once and runs it. Callers close the rows.
func (sc *StmtCache) Query(query string, args ...interface{}) (*sql.Rows, error) {
	stmt, err := sc.Prepare(query)
	if err != nil {
		return nil, err
	}
	return stmt.Query(args...)
}

// Len is the number of cached statements.
func (sc *StmtCache) Len() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.m)
}

// Clear closes every cached statement, the cache refuses new ones afterwards.
func (sc *StmtCache) Clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	for k, stmt := range sc.m {
		_ = stmt.Close()
		delete(sc.m, k)
	}
	sc.closed = true
}
