package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/pkg/logger"
)

const transactionRollbackError = "error rolling back transaction"

type Postgres struct {
	DB *sql.DB
}

func New(db *sql.DB) *Postgres {
	return &Postgres{DB: db}
}

func (p *Postgres) Close() error {
	return p.DB.Close()
}

func (p *Postgres) CreateUser(ctx context.Context, login, hashedPassword string) (int64, error) {
	var id int64
	err := p.DB.QueryRowContext(ctx, "INSERT INTO users (login, password) VALUES ($1, $2) RETURNING id", login, hashedPassword).
		Scan(&id)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			logger.Log.Warn("user already exists", logger.String("login", login))
			return 0, domain.ErrUserExists
		}
		return 0, fmt.Errorf("error creating user: %w", err)
	}

	return id, nil
}

func (p *Postgres) User(ctx context.Context, login string) (*domain.User, error) {
	row := p.DB.QueryRowContext(ctx, "SELECT id, login, password, registered_at FROM users WHERE login = $1", login)

	var user domain.User
	err := row.Scan(&user.ID, &user.Login, &user.Password, &user.RegisteredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrIncorrectCredentials
		}
		return nil, fmt.Errorf("error fetching user: %w", err)
	}

	return &user, nil
}

func (p *Postgres) UserID(ctx context.Context, login string) (int64, error) {
	var id int64
	err := p.DB.QueryRowContext(ctx, "SELECT id FROM users WHERE login = $1", login).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("error fetching user id: %w", err)
	}

	return id, nil
}

func (p *Postgres) CreateSession(ctx context.Context, id string, userID int64, now time.Time) error {
	_, err := p.DB.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, created_at, last_seen) VALUES ($1, $2, $3, $3)", id, userID, now)
	if err != nil {
		return fmt.Errorf("error creating session: %w", err)
	}

	return nil
}

func (p *Postgres) Session(ctx context.Context, id string) (*domain.ServerSession, error) {
	var s domain.ServerSession
	err := p.DB.QueryRowContext(ctx, "SELECT id, user_id, last_seen, revoked FROM sessions WHERE id = $1", id).
		Scan(&s.ID, &s.UserID, &s.LastSeen, &s.Revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("error fetching session: %w", err)
	}

	return &s, nil
}

func (p *Postgres) TouchSession(ctx context.Context, id string, now time.Time) error {
	result, err := p.DB.ExecContext(ctx, "UPDATE sessions SET last_seen = $1 WHERE id = $2 AND NOT revoked", now, id)
	if err != nil {
		return fmt.Errorf("error touching session: %w", err)
	}

	return expectRow(result, domain.ErrSessionNotFound)
}

func (p *Postgres) RevokeSession(ctx context.Context, id string) error {
	result, err := p.DB.ExecContext(ctx, "UPDATE sessions SET revoked = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("error revoking session: %w", err)
	}

	return expectRow(result, domain.ErrSessionNotFound)
}

// LiveUsers lists the logins with a session seen after since, excluding one
// user.
func (p *Postgres) LiveUsers(ctx context.Context, since time.Time, excludeUserID int64) ([]string, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT DISTINCT u.login
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE NOT s.revoked AND s.last_seen > $1 AND s.user_id <> $2
		ORDER BY u.login`, since, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("error fetching live users: %w", err)
	}
	defer closeRows(rows)

	users := []string{}
	for rows.Next() {
		var login string
		if err := rows.Scan(&login); err != nil {
			return nil, fmt.Errorf("error scanning login: %w", err)
		}
		users = append(users, login)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over live users: %w", err)
	}

	return users, nil
}

func (p *Postgres) CreateTransaction(ctx context.Context, rec domain.Record) error {
	_, err := p.DB.ExecContext(ctx,
		"INSERT INTO transactions (id, user_id, type, amount, status, details, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		rec.ID, rec.UserID, string(rec.Type), rec.Amount, string(rec.Status), rec.Details, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("error creating transaction: %w", err)
	}

	return nil
}

func (p *Postgres) Transactions(ctx context.Context, userID int64) ([]domain.Transaction, error) {
	rows, err := p.DB.QueryContext(ctx,
		"SELECT id, type, amount, status, details, created_at FROM transactions WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("error fetching transactions: %w", err)
	}
	defer closeRows(rows)

	txs := []domain.Transaction{}
	for rows.Next() {
		var tx domain.Transaction
		err := rows.Scan(&tx.ID, &tx.Type, &tx.Amount, &tx.Status, &tx.Details, &tx.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("error scanning transaction: %w", err)
		}
		txs = append(txs, tx)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over transactions: %w", err)
	}

	return txs, nil
}

// PendingBefore returns pending records created before cutoff, oldest first.
func (p *Postgres) PendingBefore(ctx context.Context, cutoff time.Time) ([]domain.Record, error) {
	rows, err := p.DB.QueryContext(ctx, `
		SELECT t.id, t.type, t.amount, t.status, t.details, t.created_at, t.user_id, u.login
		FROM transactions t JOIN users u ON u.id = t.user_id
		WHERE t.status = 'pending' AND t.created_at <= $1
		ORDER BY t.created_at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("error fetching pending transactions: %w", err)
	}
	defer closeRows(rows)

	var records []domain.Record
	for rows.Next() {
		var r domain.Record
		err := rows.Scan(&r.ID, &r.Type, &r.Amount, &r.Status, &r.Details, &r.Timestamp, &r.UserID, &r.Owner)
		if err != nil {
			return nil, fmt.Errorf("error scanning pending transaction: %w", err)
		}
		records = append(records, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over pending transactions: %w", err)
	}

	return records, nil
}

// Settle moves a pending transaction to status and, in the same database
// transaction, stores credit if given. Settling a record that is no longer
// pending returns domain.ErrTransactionNotFound.
func (p *Postgres) Settle(ctx context.Context, id string, status domain.TxStatus, credit *domain.Record) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}

	result, err := tx.ExecContext(ctx, "UPDATE transactions SET status = $1 WHERE id = $2 AND status = 'pending'", string(status), id)
	if err != nil {
		rollback(tx)
		return fmt.Errorf("error updating transaction status: %w", err)
	}
	if err := expectRow(result, domain.ErrTransactionNotFound); err != nil {
		rollback(tx)
		return err
	}

	if credit != nil {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO transactions (id, user_id, type, amount, status, details, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
			credit.ID, credit.UserID, string(credit.Type), credit.Amount, string(credit.Status), credit.Details, credit.Timestamp)
		if err != nil {
			rollback(tx)
			logger.Log.Error("error inserting credit", logger.String("transaction_id", id), logger.Int64("user_id", credit.UserID), logger.Error(err))
			return fmt.Errorf("error inserting credit: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		rollback(tx)
		return fmt.Errorf("error committing settlement: %w", err)
	}

	return nil
}

func expectRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logger.Log.Error("error closing rows", logger.Error(err))
	}
}

func rollback(tx *sql.Tx) {
	err := tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Log.Error(transactionRollbackError, logger.Error(err))
	}
}
