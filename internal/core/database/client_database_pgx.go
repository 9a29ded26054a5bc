package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sgdea/docucore/internal/config"
	"github.com/sgdea/docucore/internal/core"
	"github.com/sgdea/docucore/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

const documentColumns = `
	id, nombre_pdf, tamano_archivo, hash_archivo, dominio_origen,
	url_almacenamiento, estado_procesamiento, fecha_hora_recepcion,
	content_info, processing_info, contenido_json, ultimo_latido,
	created_at, updated_at`

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documentos
			(id, nombre_pdf, tamano_archivo, hash_archivo, dominio_origen,
			 url_almacenamiento, estado_procesamiento, fecha_hora_recepcion)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.Filename, doc.SizeBytes, nullString(doc.FileHash), doc.OriginDomain,
		nullString(doc.StorageRef), doc.Status.String(), doc.ReceivedAt)
	if err != nil {
		return fmt.Errorf("%w: insert document: %v", core.ErrPersistenceFailure, err)
	}
	return nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documentos WHERE id = $1`
	doc, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *DatabaseClient) ListDocuments(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documentos`
	args := []any{}
	where := ""
	if filter.Status != nil {
		args = append(args, filter.Status.String())
		where = fmt.Sprintf(" WHERE estado_procesamiento = $%d", len(args))
	}
	if filter.OriginDomain != "" {
		args = append(args, filter.OriginDomain)
		if where == "" {
			where = fmt.Sprintf(" WHERE dominio_origen = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND dominio_origen = $%d", len(args))
		}
	}
	q += where + " ORDER BY fecha_hora_recepcion DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// ClaimDocument is the pendiente → procesando compare-and-set. Exactly one of
// any number of concurrent claimants observes true.
func (c *DatabaseClient) ClaimDocument(ctx context.Context, id string) (bool, error) {
	const q = `
		UPDATE documentos
		SET estado_procesamiento = $2, ultimo_latido = now(), updated_at = now()
		WHERE id = $1 AND estado_procesamiento = $3
	`
	res, err := c.db.ExecContext(ctx, q, id, models.StatusProcessing.String(), models.StatusPending.String())
	if err != nil {
		return false, fmt.Errorf("%w: claim: %v", core.ErrPersistenceFailure, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// CompleteDocument writes the full extraction result and the procesado status
// in one statement, so a partially populated document is never observable.
func (c *DatabaseClient) CompleteDocument(ctx context.Context, id string, info *models.ContentInfo, content *models.ContentJSON, proc *models.ProcessingInfo) error {
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("%w: marshal content_info: %v", core.ErrPersistenceFailure, err)
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("%w: marshal contenido_json: %v", core.ErrPersistenceFailure, err)
	}
	procJSON, err := json.Marshal(proc)
	if err != nil {
		return fmt.Errorf("%w: marshal processing_info: %v", core.ErrPersistenceFailure, err)
	}

	const q = `
		UPDATE documentos
		SET estado_procesamiento = $2,
		    content_info = $3,
		    contenido_json = $4,
		    processing_info = $5,
		    updated_at = now()
		WHERE id = $1 AND estado_procesamiento = $6
	`
	res, err := c.db.ExecContext(ctx, q, id, models.StatusProcessed.String(),
		infoJSON, contentJSON, procJSON, models.StatusProcessing.String())
	if err != nil {
		return fmt.Errorf("%w: complete: %v", core.ErrPersistenceFailure, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: complete: document %s not in procesando", core.ErrPersistenceFailure, id)
	}
	return nil
}

func (c *DatabaseClient) FailDocument(ctx context.Context, id string, proc *models.ProcessingInfo) error {
	procJSON, err := json.Marshal(proc)
	if err != nil {
		return fmt.Errorf("%w: marshal processing_info: %v", core.ErrPersistenceFailure, err)
	}
	const q = `
		UPDATE documentos
		SET estado_procesamiento = $2, processing_info = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, models.StatusError.String(), procJSON)
	if err != nil {
		return fmt.Errorf("%w: fail: %v", core.ErrPersistenceFailure, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return core.ErrDocumentNotFound
	}
	return nil
}

func (c *DatabaseClient) Heartbeat(ctx context.Context, id string, at time.Time) error {
	const q = `
		UPDATE documentos SET ultimo_latido = $2
		WHERE id = $1 AND estado_procesamiento = $3
	`
	_, err := c.db.ExecContext(ctx, q, id, at, models.StatusProcessing.String())
	return err
}

// ListStaleProcessing finds runs whose heartbeat went quiet, for an external
// recovery sweep.
func (c *DatabaseClient) ListStaleProcessing(ctx context.Context, olderThan time.Duration) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + `
		FROM documentos
		WHERE estado_procesamiento = $1
		  AND (ultimo_latido IS NULL OR ultimo_latido < now() - ($2 * interval '1 second'))
		ORDER BY ultimo_latido ASC NULLS FIRST`
	rows, err := c.db.QueryContext(ctx, q, models.StatusProcessing.String(), olderThan.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// DeleteDocument removes the record and, via FK cascade, its fragments. A
// document with an active run is left untouched.
func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin delete: %v", core.ErrPersistenceFailure, err)
	}

	var estado string
	err = tx.QueryRowContext(ctx,
		`SELECT estado_procesamiento FROM documentos WHERE id = $1 FOR UPDATE`, id).Scan(&estado)
	if err == sql.ErrNoRows {
		_ = tx.Rollback()
		return core.ErrDocumentNotFound
	}
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: lock for delete: %v", core.ErrPersistenceFailure, err)
	}
	if estado == models.StatusProcessing.String() {
		_ = tx.Rollback()
		return core.ErrDocumentBusy
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM documentos WHERE id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: delete: %v", core.ErrPersistenceFailure, err)
	}
	return tx.Commit()
}

// InsertFragments inserts fragments in a single transaction. Fragments with
// a nil embedding are stored with a NULL vector and still reachable by the
// keyword fallback.
func (c *DatabaseClient) InsertFragments(ctx context.Context, frags []models.Fragment) error {
	if len(frags) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin fragments: %v", core.ErrPersistenceFailure, err)
	}

	const q = `
		INSERT INTO documento_fragmentos
			(id, documento_id, posicion, texto, embedding, num_tokens, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: prepare fragments: %v", core.ErrPersistenceFailure, err)
	}
	defer stmt.Close()

	for i := range frags {
		f := &frags[i]
		var vec any
		if f.Embedding != nil {
			vec = pgvector.NewVector(f.Embedding)
		}
		if _, err := stmt.ExecContext(ctx,
			f.ID, f.DocumentID, f.Position, f.Text, vec, f.TokenCount, f.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: insert fragment %d: %v", core.ErrPersistenceFailure, f.Position, err)
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) FragmentsByDocument(ctx context.Context, documentID string) ([]models.Fragment, error) {
	const q = `
		SELECT id, documento_id, posicion, texto, num_tokens, created_at
		FROM documento_fragmentos
		WHERE documento_id = $1
		ORDER BY posicion ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Fragment
	for rows.Next() {
		var f models.Fragment
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.Position, &f.Text, &f.TokenCount, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SearchFragments finds top-k similar fragments inside one document for a
// query embedding. The documento_id predicate is the isolation boundary.
func (c *DatabaseClient) SearchFragments(ctx context.Context, documentID string, queryVec []float32, limit int) ([]models.Fragment, error) {
	const q = `
		SELECT id, documento_id, posicion, texto, num_tokens
		FROM documento_fragmentos
		WHERE documento_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <-> $2
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, documentID, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Fragment
	for rows.Next() {
		var f models.Fragment
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.Position, &f.Text, &f.TokenCount); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (*models.Document, error) {
	var (
		d           models.Document
		estado      string
		hash        sql.NullString
		storage     sql.NullString
		infoJSON    sql.NullString
		procJSON    sql.NullString
		contentJSON sql.NullString
		latido      sql.NullTime
	)
	err := r.Scan(
		&d.ID, &d.Filename, &d.SizeBytes, &hash, &d.OriginDomain,
		&storage, &estado, &d.ReceivedAt,
		&infoJSON, &procJSON, &contentJSON, &latido,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	st, err := models.ParseStatus(estado)
	if err != nil {
		return nil, err
	}
	d.Status = st
	d.FileHash = hash.String
	d.StorageRef = storage.String
	if latido.Valid {
		t := latido.Time
		d.LastHeartbeat = &t
	}
	if infoJSON.Valid && infoJSON.String != "" {
		if err := json.Unmarshal([]byte(infoJSON.String), &d.ContentInfo); err != nil {
			return nil, err
		}
	}
	if procJSON.Valid && procJSON.String != "" {
		if err := json.Unmarshal([]byte(procJSON.String), &d.Processing); err != nil {
			return nil, err
		}
	}
	if contentJSON.Valid && contentJSON.String != "" {
		if err := json.Unmarshal([]byte(contentJSON.String), &d.ContentJSON); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
