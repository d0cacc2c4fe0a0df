// Package index builds and loads the persisted vector index of the corpus.
//
// The artifact is a single SQLite file holding every chunk with its
// embedding plus a one-row manifest. A build writes a fresh file next to the
// old one and renames it into place, so readers never observe a partial
// index. Loaded indexes are immutable and safe for concurrent use.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/corpusqa/internal/document"
	"github.com/dgallion1/corpusqa/internal/embed"
	"github.com/dgallion1/corpusqa/internal/index/migrations"
)

// FileName is the artifact name inside the index directory.
const FileName = "index.db"

var (
	ErrNothingToIndex    = errors.New("no chunks to index")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrModelMismatch     = errors.New("index was built with a different embedding model")
	ErrNotBuilt          = errors.New("index has not been built")
)

// Manifest describes one build of the index.
type Manifest struct {
	Model      string    `json:"model"`
	Dimension  int       `json:"dimension"`
	ChunkCount int       `json:"chunk_count"`
	BuildID    string    `json:"build_id"`
	BuiltAt    time.Time `json:"built_at"`
}

type BuildOptions struct {
	BatchSize int
	Logger    *slog.Logger
}

// Build embeds chunks and replaces the artifact in dir. Nothing is written
// when chunks is empty or any embedding fails.
func Build(ctx context.Context, dir string, chunks []document.Chunk, embedder embed.Provider, opts BuildOptions) (Manifest, error) {
	if len(chunks) == 0 {
		return Manifest{}, ErrNothingToIndex
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	vectors, dim, err := embedAll(ctx, chunks, embedder, opts.BatchSize, log)
	if err != nil {
		return Manifest{}, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Manifest{}, fmt.Errorf("create index directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".index-*.db")
	if err != nil {
		return Manifest{}, fmt.Errorf("create temp index: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath) // no-op after a successful rename

	m := Manifest{
		Model:      embedder.ModelName(),
		Dimension:  dim,
		ChunkCount: len(chunks),
		BuildID:    uuid.NewString(),
		BuiltAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := writeArtifact(ctx, tmpPath, m, chunks, vectors); err != nil {
		return Manifest{}, err
	}

	if err := os.Rename(tmpPath, filepath.Join(dir, FileName)); err != nil {
		return Manifest{}, fmt.Errorf("replace index: %w", err)
	}
	log.Info("index built", "dir", dir, "chunks", m.ChunkCount, "model", m.Model, "dimension", m.Dimension, "build_id", m.BuildID)
	return m, nil
}

func embedAll(ctx context.Context, chunks []document.Chunk, embedder embed.Provider, batchSize int, log *slog.Logger) ([][]float32, int, error) {
	vectors := make([][]float32, 0, len(chunks))
	dim := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		batch, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, 0, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(batch) != len(texts) {
			return nil, 0, fmt.Errorf("embed chunks %d-%d: got %d vectors", start, end-1, len(batch))
		}
		if dim == 0 {
			if dim = embedder.Dimensions(); dim == 0 {
				dim = len(batch[0])
			}
		}
		for i, v := range batch {
			if len(v) != dim {
				return nil, 0, fmt.Errorf("%w: chunk %d has %d, want %d", ErrDimensionMismatch, start+i, len(v), dim)
			}
		}
		vectors = append(vectors, batch...)
		log.Debug("embedded batch", "done", end, "total", len(chunks))
	}
	return vectors, dim, nil
}

func writeArtifact(ctx context.Context, path string, m Manifest, chunks []document.Chunk, vectors [][]float32) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := migrate(db, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO manifest (id, model, dimension, chunk_count, build_id, built_at) VALUES (1, ?, ?, ?, ?, ?)`,
		m.Model, m.Dimension, m.ChunkCount, m.BuildID, m.BuiltAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert manifest: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (id, source, origin, seq, text, vector) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx, i+1, c.Source, string(c.Origin), c.Seq, c.Text, encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index: %w", err)
	}
	return db.Close()
}

type entry struct {
	id    int64
	chunk document.Chunk
	vec   []float32
	norm  float64
}

// Index is a loaded, read-only corpus index.
type Index struct {
	manifest Manifest
	entries  []entry
}

// Open loads the artifact in dir. A non-empty expectModel must match the
// model the index was built with.
func Open(dir, expectModel string) (*Index, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotBuilt, path)
		}
		return nil, fmt.Errorf("stat index: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	var m Manifest
	var builtAt string
	err = db.QueryRow(`SELECT model, dimension, chunk_count, build_id, built_at FROM manifest WHERE id = 1`).
		Scan(&m.Model, &m.Dimension, &m.ChunkCount, &m.BuildID, &builtAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: manifest missing in %s", ErrNotBuilt, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if m.BuiltAt, err = time.Parse(time.RFC3339, builtAt); err != nil {
		return nil, fmt.Errorf("parse built_at: %w", err)
	}
	if expectModel != "" && m.Model != expectModel {
		return nil, fmt.Errorf("%w: index has %q, provider has %q", ErrModelMismatch, m.Model, expectModel)
	}

	rows, err := db.Query(`SELECT id, source, origin, seq, text, vector FROM chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	idx := &Index{manifest: m, entries: make([]entry, 0, m.ChunkCount)}
	for rows.Next() {
		var e entry
		var origin string
		var blob []byte
		if err := rows.Scan(&e.id, &e.chunk.Source, &origin, &e.chunk.Seq, &e.chunk.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		e.chunk.Origin = document.Origin(origin)
		if e.vec, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", e.id, err)
		}
		if len(e.vec) != m.Dimension {
			return nil, fmt.Errorf("%w: chunk %d has %d, manifest says %d", ErrDimensionMismatch, e.id, len(e.vec), m.Dimension)
		}
		e.norm = norm(e.vec)
		idx.entries = append(idx.entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	return idx, nil
}

func (x *Index) Manifest() Manifest { return x.manifest }

func (x *Index) Len() int { return len(x.entries) }

// Nearest returns up to k chunks by descending cosine similarity to vec.
// Equal scores are ordered by insertion order. Ranks start at 1.
func (x *Index) Nearest(vec []float32, k int) ([]document.Hit, error) {
	if len(vec) != x.manifest.Dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vec), x.manifest.Dimension)
	}
	if k <= 0 || len(x.entries) == 0 {
		return nil, nil
	}

	type scored struct {
		i     int
		score float64
	}
	qn := norm(vec)
	all := make([]scored, len(x.entries))
	for i, e := range x.entries {
		all[i] = scored{i: i, score: cosine(vec, qn, e.vec, e.norm)}
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].score != all[b].score {
			return all[a].score > all[b].score
		}
		return x.entries[all[a].i].id < x.entries[all[b].i].id
	})

	k = min(k, len(all))
	hits := make([]document.Hit, k)
	for r := range k {
		hits[r] = document.Hit{
			Chunk: x.entries[all[r].i].chunk,
			Rank:  r + 1,
			Score: float32(all[r].score),
		}
	}
	return hits, nil
}

func norm(v []float32) float64 {
	var s float64
	for _, f := range v {
		s += float64(f) * float64(f)
	}
	return math.Sqrt(s)
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}
