package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Mawilis/legal-doc-system-sub010/internal/fieldcrypt"
	"github.com/Mawilis/legal-doc-system-sub010/internal/retention"
	"github.com/Mawilis/legal-doc-system-sub010/internal/workflow"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists artifacts in the artifacts table. Encrypted fields
// and transition history ride along as JSONB; only ciphertext ever reaches
// the database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, artifact *workflow.Artifact) error {
	fields, history, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO artifacts (
			id, tenant_id, artifact_type, status, legal_basis,
			created_at, status_deadline, escalation_unresolved,
			sensitive_fields, history
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		artifact.ID.String(),
		artifact.TenantID.String(),
		string(artifact.Type),
		string(artifact.Status),
		string(artifact.LegalBasis),
		artifact.CreatedAt,
		artifact.StatusDeadline,
		artifact.EscalationUnresolved,
		fields,
		history,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("artifact %s: %w", artifact.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenant domain.TenantID, id domain.ArtifactID) (*workflow.Artifact, error) {
	query := selectArtifact + ` WHERE id = $1 AND tenant_id = $2`
	row := s.db.QueryRowContext(ctx, query, id.String(), tenant.String())
	artifact, err := scanArtifact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("query artifact: %w", err)
	}
	return artifact, nil
}

func (s *PostgresStore) Update(ctx context.Context, artifact *workflow.Artifact) error {
	fields, history, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	query := `
		UPDATE artifacts
		SET status = $3, status_deadline = $4, escalation_unresolved = $5,
			sensitive_fields = $6, history = $7
		WHERE id = $1 AND tenant_id = $2
	`
	res, err := s.db.ExecContext(ctx, query,
		artifact.ID.String(),
		artifact.TenantID.String(),
		string(artifact.Status),
		artifact.StatusDeadline,
		artifact.EscalationUnresolved,
		fields,
		history,
	)
	if err != nil {
		return fmt.Errorf("update artifact: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update artifact: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, tenant domain.TenantID, id domain.ArtifactID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM artifacts WHERE id = $1 AND tenant_id = $2`,
		id.String(), tenant.String(),
	)
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenant domain.TenantID) ([]workflow.Artifact, error) {
	query := selectArtifact + ` WHERE tenant_id = $1 ORDER BY created_at ASC`
	return s.queryArtifacts(ctx, query, tenant.String())
}

func (s *PostgresStore) ListDeadlined(ctx context.Context, now time.Time) ([]workflow.Artifact, error) {
	query := selectArtifact + `
		WHERE status_deadline IS NOT NULL AND status_deadline <= $1
		ORDER BY created_at ASC
	`
	artifacts, err := s.queryArtifacts(ctx, query, now)
	if err != nil {
		return nil, err
	}
	// Terminal filtering happens here rather than in SQL so the status table
	// stays in one place.
	out := artifacts[:0]
	for _, artifact := range artifacts {
		if !workflow.IsTerminal(artifact.Type, artifact.Status) {
			out = append(out, artifact)
		}
	}
	return out, nil
}

func (s *PostgresStore) All(ctx context.Context) ([]workflow.Artifact, error) {
	return s.queryArtifacts(ctx, selectArtifact+` ORDER BY created_at ASC`)
}

const selectArtifact = `
	SELECT id, tenant_id, artifact_type, status, legal_basis,
		   created_at, status_deadline, escalation_unresolved,
		   sensitive_fields, history
	FROM artifacts
`

func (s *PostgresStore) queryArtifacts(ctx context.Context, query string, args ...any) ([]workflow.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var out []workflow.Artifact
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, *artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return out, nil
}

func encodeArtifact(artifact *workflow.Artifact) (fields, history []byte, err error) {
	fields, err = json.Marshal(artifact.SensitiveFields)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal sensitive fields: %w", err)
	}
	history, err = json.Marshal(artifact.History)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal history: %w", err)
	}
	return fields, history, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*workflow.Artifact, error) {
	var (
		artifact    workflow.Artifact
		idRaw       string
		tenantRaw   string
		typeRaw     string
		statusRaw   string
		basisRaw    string
		deadline    sql.NullTime
		fieldsJSON  []byte
		historyJSON []byte
	)
	err := row.Scan(
		&idRaw, &tenantRaw, &typeRaw, &statusRaw, &basisRaw,
		&artifact.CreatedAt, &deadline, &artifact.EscalationUnresolved,
		&fieldsJSON, &historyJSON,
	)
	if err != nil {
		return nil, err
	}

	if artifact.ID, err = domain.ParseArtifactID(idRaw); err != nil {
		return nil, err
	}
	if artifact.TenantID, err = domain.ParseTenantID(tenantRaw); err != nil {
		return nil, err
	}
	artifact.Type = workflow.ArtifactType(typeRaw)
	artifact.Status = workflow.Status(statusRaw)
	artifact.LegalBasis = retention.LegalBasis(basisRaw)
	artifact.CreatedAt = artifact.CreatedAt.UTC()
	if deadline.Valid {
		t := deadline.Time.UTC()
		artifact.StatusDeadline = &t
	}
	if err := json.Unmarshal(fieldsJSON, &artifact.SensitiveFields); err != nil {
		return nil, fmt.Errorf("unmarshal sensitive fields: %w", err)
	}
	if err := json.Unmarshal(historyJSON, &artifact.History); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	if artifact.SensitiveFields == nil {
		artifact.SensitiveFields = make(map[string]fieldcrypt.EncryptedField)
	}
	return &artifact, nil
}
