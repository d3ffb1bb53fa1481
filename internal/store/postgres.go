package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"course-rag/internal/models"
	"course-rag/internal/tenant"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// ChunkRow is one persisted passage. The (owner_id, tenant_key) pair is the
// isolation predicate applied to every read.
type ChunkRow struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`
	ID            int64     `bun:"id,pk,autoincrement"`
	OwnerID       int64     `bun:"owner_id,notnull"`
	TenantKey     string    `bun:"tenant_key,notnull"`
	FileID        int64     `bun:"file_id,notnull"`
	FileName      string    `bun:"file_name,notnull"`
	ChunkIndex    int       `bun:"chunk_index,notnull"`
	Text          string    `bun:"text,notnull"`
	Embedding     []float32 `bun:"embedding,notnull,type:vector(768)"`
	Page          *int      `bun:"page"`
}

// ContextRow persists one CourseContext as a jsonb payload.
type ContextRow struct {
	bun.BaseModel `bun:"table:course_contexts,alias:cc"`
	ID            int64  `bun:"id,pk,autoincrement"`
	OwnerID       int64  `bun:"owner_id,notnull,unique:owner_tenant"`
	TenantKey     string `bun:"tenant_key,notnull,unique:owner_tenant"`
	Payload       []byte `bun:"payload,notnull,type:jsonb"`
}

// PGStore implements ChunkStore and ContextStore on Postgres via bun.
// Candidate rows are scanned by tenant and ranked in process with the same
// cosine helper the other backends use.
type PGStore struct {
	db       *bun.DB
	embedder Embedder
}

func ConnectPG(dsn, password string) *sql.DB {
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn), pgdriver.WithPassword(password)))
}

func NewPGStore(sqldb *sql.DB, debug bool, embedder Embedder) *PGStore {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return &PGStore{db: db, embedder: embedder}
}

// Init creates the tables if they do not exist.
func (s *PGStore) Init(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*ChunkRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("store: creating chunks table: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*ContextRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("store: creating course_contexts table: %w", err)
	}
	return nil
}

func (s *PGStore) Close() error {
	return s.db.Close()
}

func (s *PGStore) AddChunks(ctx context.Context, ownerID int64, tenantKey string, chunks []NewChunk, fileID int64, fileName string) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	key := tenant.Normalize(tenantKey)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	if err := validateChunks(chunks, vectors); err != nil {
		return 0, err
	}

	rows := make([]ChunkRow, len(chunks))
	for i, c := range chunks {
		rows[i] = ChunkRow{
			OwnerID:    ownerID,
			TenantKey:  key,
			FileID:     fileID,
			FileName:   fileName,
			ChunkIndex: c.Index,
			Text:       c.Text,
			Embedding:  vectors[i],
			Page:       c.Page,
		}
	}
	if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return 0, fmt.Errorf("store: inserting chunks: %w", err)
	}
	return len(rows), nil
}

func (s *PGStore) Search(ctx context.Context, ownerID int64, tenantKey string, queryVec []float32, topK int) ([]Match, error) {
	key := tenant.Normalize(tenantKey)

	var rows []ChunkRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("owner_id = ?", ownerID).
		Where("tenant_key = ?", key).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: scanning tenant chunks: %w", err)
	}

	cands := make([]candidate, 0, len(rows))
	for _, r := range rows {
		cands = append(cands, candidate{
			match: Match{Text: r.Text, FileID: r.FileID, FileName: r.FileName, Index: r.ChunkIndex, Page: r.Page},
			vec:   r.Embedding,
		})
	}
	return rankCandidates(queryVec, cands, topK), nil
}

func (s *PGStore) Count(ctx context.Context, ownerID int64, tenantKey string) (int, error) {
	key := tenant.Normalize(tenantKey)
	return s.db.NewSelect().
		Model((*ChunkRow)(nil)).
		Where("owner_id = ?", ownerID).
		Where("tenant_key = ?", key).
		Count(ctx)
}

func (s *PGStore) DeleteFile(ctx context.Context, fileID int64) error {
	_, err := s.db.NewDelete().
		Model((*ChunkRow)(nil)).
		Where("file_id = ?", fileID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: deleting chunks for file %d: %w", fileID, err)
	}
	return nil
}

func (s *PGStore) GetContext(ctx context.Context, ownerID int64, tenantKey string) (*models.CourseContext, error) {
	key := tenant.Normalize(tenantKey)

	var row ContextRow
	err := s.db.NewSelect().
		Model(&row).
		Where("owner_id = ?", ownerID).
		Where("tenant_key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: loading course context: %w", err)
	}

	var cc models.CourseContext
	if err := json.Unmarshal(row.Payload, &cc); err != nil {
		return nil, fmt.Errorf("store: decoding course context: %w", err)
	}
	return &cc, nil
}

func (s *PGStore) PutContext(ctx context.Context, ownerID int64, tenantKey string, cc *models.CourseContext) error {
	key := tenant.Normalize(tenantKey)

	payload, err := json.Marshal(cc)
	if err != nil {
		return fmt.Errorf("store: encoding course context: %w", err)
	}
	row := &ContextRow{OwnerID: ownerID, TenantKey: key, Payload: payload}
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (owner_id, tenant_key) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: upserting course context: %w", err)
	}
	return nil
}

var (
	_ ChunkStore   = (*PGStore)(nil)
	_ ContextStore = (*PGStore)(nil)
)
