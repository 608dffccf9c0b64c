package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists ledger entries in the ledger_entries table. The
// unique (tenant_id, sequence_index) constraint is the storage-level backstop
// for the service's per-tenant append serialization: a forked append loses
// the insert race and surfaces as sentinel.ErrConflict instead of silently
// double-writing a sequence index.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO ledger_entries (
			tenant_id, sequence_index, timestamp, actor_id, action,
			payload_digest, previous_hash, self_hash,
			request_id, user_agent, predecessor_purged
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.TenantID.String(),
		entry.SequenceIndex,
		entry.Timestamp,
		entry.ActorID.String(),
		string(entry.Action),
		entry.PayloadDigest,
		entry.PreviousHash,
		entry.SelfHash,
		entry.RequestID,
		entry.UserAgent,
		entry.PredecessorPurged,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("duplicate sequence index %d: %w", entry.SequenceIndex, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert ledger entry: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Last(ctx context.Context, tenant domain.TenantID) (*Entry, error) {
	query := `
		SELECT sequence_index, timestamp, actor_id, action,
			   payload_digest, previous_hash, self_hash,
			   request_id, user_agent, predecessor_purged
		FROM ledger_entries
		WHERE tenant_id = $1
		ORDER BY sequence_index DESC
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, tenant.String())
	entry, err := scanEntry(row, tenant)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("query chain head: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) Range(ctx context.Context, tenant domain.TenantID, from, to uint64) ([]Entry, error) {
	query := `
		SELECT sequence_index, timestamp, actor_id, action,
			   payload_digest, previous_hash, self_hash,
			   request_id, user_agent, predecessor_purged
		FROM ledger_entries
		WHERE tenant_id = $1 AND sequence_index >= $2 AND ($3 = 0 OR sequence_index <= $3)
		ORDER BY sequence_index ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenant.String(), from, to)
	if err != nil {
		return nil, fmt.Errorf("query ledger range: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows, tenant)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) PurgeBefore(ctx context.Context, tenant domain.TenantID, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	res, err := tx.ExecContext(ctx,
		`DELETE FROM ledger_entries WHERE tenant_id = $1 AND timestamp < $2`,
		tenant.String(), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge entries: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge entries: %w", err)
	}
	if removed > 0 {
		// The oldest surviving entry now points at a predecessor that no
		// longer exists; mark the break so verification keeps reporting it.
		_, err = tx.ExecContext(ctx, `
			UPDATE ledger_entries SET predecessor_purged = TRUE
			WHERE tenant_id = $1 AND sequence_index = (
				SELECT MIN(sequence_index) FROM ledger_entries WHERE tenant_id = $1
			)
		`, tenant.String())
		if err != nil {
			return 0, fmt.Errorf("mark purge boundary: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return int(removed), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner, tenant domain.TenantID) (*Entry, error) {
	var (
		entry   Entry
		actorID string
		action  string
	)
	err := row.Scan(
		&entry.SequenceIndex,
		&entry.Timestamp,
		&actorID,
		&action,
		&entry.PayloadDigest,
		&entry.PreviousHash,
		&entry.SelfHash,
		&entry.RequestID,
		&entry.UserAgent,
		&entry.PredecessorPurged,
	)
	if err != nil {
		return nil, err
	}
	parsedActor, err := domain.ParseActorID(actorID)
	if err != nil {
		return nil, err
	}
	entry.TenantID = tenant
	entry.ActorID = parsedActor
	entry.Action = Action(action)
	entry.Timestamp = entry.Timestamp.UTC()
	return &entry, nil
}
