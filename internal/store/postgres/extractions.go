package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/guestlens/guestlens/internal/face"
	"github.com/guestlens/guestlens/internal/store"
)

// Cache is the PostgreSQL-backed extraction cache. One extractions row per
// (content hash, model, fidelity), the detected faces in a child table with
// pgvector embeddings.
type Cache struct {
	pool *Pool
}

// NewCache creates a cache over an initialized pool.
func NewCache(pool *Pool) *Cache {
	return &Cache{pool: pool}
}

// GetExtraction returns the cached detections for a key. A zero-face
// extraction is a valid hit with an empty slice.
func (c *Cache) GetExtraction(ctx context.Context, key store.ExtractionKey) ([]face.Detection, bool, error) {
	var id int64
	var faceCount int
	err := c.pool.db.QueryRowContext(ctx, `
		SELECT id, face_count FROM extractions
		WHERE content_hash = $1 AND model = $2 AND fidelity = $3
	`, key.ContentHash, key.Model, key.Fidelity).Scan(&id, &faceCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query extraction: %w", err)
	}

	detections := make([]face.Detection, 0, faceCount)
	rows, err := c.pool.db.QueryContext(ctx, `
		SELECT face_index, embedding, bbox, det_score
		FROM extraction_faces
		WHERE extraction_id = $1
		ORDER BY face_index
	`, id)
	if err != nil {
		return nil, false, fmt.Errorf("query extraction faces: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var det face.Detection
		var vec pgvector.Vector
		var bbox pq.Float64Array
		if err := rows.Scan(&det.Index, &vec, &bbox, &det.Score); err != nil {
			return nil, false, fmt.Errorf("scan extraction face: %w", err)
		}
		det.Embedding = vec.Slice()
		if len(bbox) == 4 {
			det.Box = face.Box{X1: bbox[0], Y1: bbox[1], X2: bbox[2], Y2: bbox[3]}
		}
		detections = append(detections, det)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate extraction faces: %w", err)
	}

	return detections, true, nil
}

// PutExtraction stores the detections for a key, replacing any previous
// entry.
func (c *Cache) PutExtraction(ctx context.Context, key store.ExtractionKey, detections []face.Detection) error {
	tx, err := c.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO extractions (content_hash, model, fidelity, face_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_hash, model, fidelity) DO UPDATE SET
			face_count = EXCLUDED.face_count,
			created_at = NOW()
		RETURNING id
	`, key.ContentHash, key.Model, key.Fidelity, len(detections)).Scan(&id)
	if err != nil {
		return fmt.Errorf("upsert extraction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM extraction_faces WHERE extraction_id = $1", id); err != nil {
		return fmt.Errorf("delete stale faces: %w", err)
	}

	for _, det := range detections {
		bbox := pq.Float64Array{det.Box.X1, det.Box.Y1, det.Box.X2, det.Box.Y2}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO extraction_faces (extraction_id, face_index, embedding, bbox, det_score)
			VALUES ($1, $2, $3::vector, $4, $5)
		`, id, det.Index, pgvector.NewVector(det.Embedding), bbox, det.Score)
		if err != nil {
			return fmt.Errorf("insert face %d: %w", det.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit extraction: %w", err)
	}
	return nil
}

// Stats returns entry and face counts.
func (c *Cache) Stats(ctx context.Context) (store.Stats, error) {
	var s store.Stats
	err := c.pool.db.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM extractions), (SELECT COUNT(*) FROM extraction_faces)",
	).Scan(&s.Extractions, &s.Faces)
	if err != nil {
		return s, fmt.Errorf("query cache stats: %w", err)
	}
	return s, nil
}

// Clear drops every cached extraction.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.pool.db.ExecContext(ctx, "TRUNCATE extraction_faces, extractions"); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (c *Cache) Close() error {
	return c.pool.Close()
}

var _ store.Cache = (*Cache)(nil)
