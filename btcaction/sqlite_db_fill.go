/*
SQLiteFillStorage is an implementation of FillStorage using SQLite.

Table is btc_action_fill
*/
package btcaction

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/lending-go/database"
)

var (
	ErrFillNotFound     = errors.New("fill not found")
	ErrFillNotConfirmed = errors.New("fill not confirmed")
)

const fillColumns = `block_number, block_hash, tx_hash, status, created_at, borrower_address, lender_address, amount, evm_borrower, evm_tx_hash`

type SQLiteFillStorage struct {
	db *sql.DB
	sc *database.StmtCache
}

func NewSQLiteFillStorage(dbPath string) (*SQLiteFillStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// one writer at a time, sqlite would answer "database is locked" otherwise
	db.SetMaxOpenConns(1)
	storage := &SQLiteFillStorage{db: db, sc: database.NewStmtCache(db)}
	if err := storage.init(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

func (s *SQLiteFillStorage) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS btc_action_fill (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		block_number INTEGER DEFAULT 0,
		block_hash TEXT DEFAULT '',
		tx_hash TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		borrower_address TEXT,
		lender_address TEXT,
		amount INTEGER,
		evm_borrower TEXT DEFAULT '',
		evm_tx_hash TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_fill_status ON btc_action_fill(status);
	CREATE INDEX IF NOT EXISTS idx_fill_borrower ON btc_action_fill(borrower_address);
	`
	if _, err := s.db.Exec(query); err != nil {
		return err
	}
	return s.addColumnIfMissing("evm_tx_hash", "TEXT DEFAULT ''")
}

// addColumnIfMissing upgrades a table created by an older build.
func (s *SQLiteFillStorage) addColumnIfMissing(column string, decl string) error {
	rows, err := s.db.Query(`PRAGMA table_info(btc_action_fill)`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	logger.WithField("column", column).Info("Upgrading btc_action_fill table")
	_, err = s.db.Exec(`ALTER TABLE btc_action_fill ADD COLUMN ` + column + ` ` + decl)
	return err
}

func (s *SQLiteFillStorage) Close() error {
	s.sc.Clear()
	return s.db.Close()
}

func (s *SQLiteFillStorage) AddFill(fill FillAction) error {
	// Protection of double adding.
	if hits, err := s.GetFillByTxHash(fill.TxHash); err != nil {
		return err
	} else if len(hits) > 0 {
		logger.WithField("txHash", fill.TxHash).Debug("Fill already exists, skip.")
		return nil
	}
	if fill.Status == "" {
		fill.Status = FillPending
	}
	if fill.CreatedAt.IsZero() {
		fill.CreatedAt = time.Now()
	}

	_, err := s.sc.Exec(`INSERT INTO btc_action_fill (`+fillColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.BlockNumber, fill.BlockHash, fill.TxHash, string(fill.Status), fill.CreatedAt.Unix(),
		fill.BorrowerAddress, fill.LenderAddress, fill.Amount, fill.EvmBorrower, fill.EvmTxHash,
	)
	return err
}

func (s *SQLiteFillStorage) GetFillByTxHash(txHash string) ([]FillAction, error) {
	return s.query(`SELECT `+fillColumns+` FROM btc_action_fill WHERE tx_hash = ?`, txHash)
}

func (s *SQLiteFillStorage) GetFillsByStatus(status FillStatus) ([]FillAction, error) {
	return s.query(`SELECT `+fillColumns+` FROM btc_action_fill WHERE status = ? ORDER BY id ASC`, string(status))
}

func (s *SQLiteFillStorage) GetFillsByBorrower(borrower string) ([]FillAction, error) {
	return s.query(`SELECT `+fillColumns+` FROM btc_action_fill WHERE borrower_address = ? ORDER BY id ASC`, borrower)
}

func (s *SQLiteFillStorage) ListFills(limit int) ([]FillAction, error) {
	if limit <= 0 {
		return s.query(`SELECT ` + fillColumns + ` FROM btc_action_fill ORDER BY id DESC`)
	}
	return s.query(`SELECT `+fillColumns+` FROM btc_action_fill ORDER BY id DESC LIMIT ?`, limit)
}

func (s *SQLiteFillStorage) MarkConfirmed(txHash string, b *Basic) error {
	res, err := s.sc.Exec(`UPDATE btc_action_fill SET block_number = ?, block_hash = ?, status = ? WHERE tx_hash = ? AND status = ?`,
		b.BlockNumber, b.BlockHash, string(FillConfirmed), txHash, string(FillPending))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// Confirming twice is fine, confirming an unknown fill is not.
	hits, err := s.GetFillByTxHash(txHash)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		return fmt.Errorf("%w: %s", ErrFillNotFound, txHash)
	}
	return nil
}

func (s *SQLiteFillStorage) MarkLent(txHash string, evmTxHash string) error {
	res, err := s.sc.Exec(`UPDATE btc_action_fill SET evm_tx_hash = ?, status = ? WHERE tx_hash = ? AND status = ?`,
		evmTxHash, string(FillLent), txHash, string(FillConfirmed))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	hits, err := s.GetFillByTxHash(txHash)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		return fmt.Errorf("%w: %s", ErrFillNotFound, txHash)
	}
	if hits[0].Status == FillPending {
		return fmt.Errorf("%w: %s", ErrFillNotConfirmed, txHash)
	}
	// already lent, the first lend() tx is kept
	return nil
}

func (s *SQLiteFillStorage) query(query string, args ...interface{}) ([]FillAction, error) {
	rows, err := s.sc.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []FillAction
	for rows.Next() {
		var (
			fill      FillAction
			status    string
			createdAt int64
		)
		err := rows.Scan(
			&fill.BlockNumber, &fill.BlockHash, &fill.TxHash, &status, &createdAt,
			&fill.BorrowerAddress, &fill.LenderAddress, &fill.Amount, &fill.EvmBorrower, &fill.EvmTxHash,
		)
		if err != nil {
			return nil, err
		}
		fill.Status = FillStatus(status)
		fill.CreatedAt = time.Unix(createdAt, 0)
		fills = append(fills, fill)
	}
	return fills, rows.Err()
}
