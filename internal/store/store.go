// Package store keeps extracted datasets in an SQLite library.
//
// Each dataset is stored as its binary encoding plus one index row per mesh
// record, keyed by the record's compatibility key (vertex count and vertex
// hash). FindCompatible uses that index to answer "which stored datasets can
// be applied to this mesh" without decoding any payload.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/blendshare/pkg/dataset"
)

// ErrNotFound is returned when no dataset has the requested name.
var ErrNotFound = errors.New("dataset not found")

// Entry describes one stored dataset.
type Entry struct {
	Name     string
	Origin   string
	Deformer string
	Meshes   int
	Size     int
	Created  time.Time
}

// Match is a stored mesh record whose compatibility key matched a query.
type Match struct {
	Dataset  string
	Mesh     string
	Channels int
}

// Store is a dataset library backed by SQLite.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens or creates the library at path. Use Memory for a throwaway
// in-memory library.
func Open(path string, opts ...Option) (*Store, error) {
	o := defaults()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}

	db, err := openDB(path, &o)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, log: o.log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores ds under its name, replacing any dataset of the same name.
func (s *Store) Put(ctx context.Context, ds *dataset.Dataset) error {
	if ds.Name == "" {
		return errors.New("dataset has no name")
	}
	payload, err := dataset.Marshal(ds)
	if err != nil {
		return errors.Wrapf(err, "encoding %q", ds.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_meshes WHERE dataset = ?`, ds.Name); err != nil {
		return errors.Wrap(err, "clearing mesh index")
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO datasets (name, origin, deformer, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			origin = excluded.origin,
			deformer = excluded.deformer,
			payload = excluded.payload,
			created_at = excluded.created_at`,
		ds.Name, ds.Origin, ds.DeformerID, payload, time.Now().Unix())
	if err != nil {
		return errors.Wrapf(err, "storing %q", ds.Name)
	}

	for i := range ds.Meshes {
		rec := &ds.Meshes[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO dataset_meshes (dataset, mesh, vertex_count, vertex_hash, control_points, channels)
			VALUES (?, ?, ?, ?, ?, ?)`,
			ds.Name, rec.Name, rec.VertexCount, int64(rec.VertexHash), rec.ControlPointCount, len(rec.Channels))
		if err != nil {
			return errors.Wrapf(err, "indexing mesh %q", rec.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	s.log.Debug("stored dataset",
		zap.String("name", ds.Name),
		zap.Int("meshes", len(ds.Meshes)),
		zap.Int("bytes", len(payload)))
	return nil
}

// Get loads the named dataset.
func (s *Store) Get(ctx context.Context, name string) (*dataset.Dataset, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM datasets WHERE name = ?`, name).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading %q", name)
	}

	ds, err := dataset.Parse(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %q", name)
	}
	return ds, nil
}

// List returns every stored dataset ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.name, d.origin, d.deformer, length(d.payload), d.created_at,
			(SELECT count(*) FROM dataset_meshes m WHERE m.dataset = d.name)
		FROM datasets d
		ORDER BY d.name`)
	if err != nil {
		return nil, errors.Wrap(err, "listing datasets")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Name, &e.Origin, &e.Deformer, &e.Size, &created, &e.Meshes); err != nil {
			return nil, errors.Wrap(err, "scanning dataset")
		}
		e.Created = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "listing datasets")
}

// Delete removes the named dataset and its mesh index.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name)
	if err != nil {
		return errors.Wrapf(err, "deleting %q", name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "deleting %q", name)
	}
	if n == 0 {
		return errors.Wrap(ErrNotFound, name)
	}
	s.log.Debug("deleted dataset", zap.String("name", name))
	return nil
}

// FindCompatible returns the stored mesh records whose compatibility key is
// (count, hash). Topology-invalid records never match.
func (s *Store) FindCompatible(ctx context.Context, count int, hash uint64) ([]Match, error) {
	if count == dataset.InvalidVertexCount {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT dataset, mesh, channels FROM dataset_meshes
		WHERE vertex_count = ? AND vertex_hash = ?
		ORDER BY dataset, mesh`,
		count, int64(hash))
	if err != nil {
		return nil, errors.Wrap(err, "querying mesh index")
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.Dataset, &m.Mesh, &m.Channels); err != nil {
			return nil, errors.Wrap(err, "scanning match")
		}
		matches = append(matches, m)
	}
	return matches, errors.Wrap(rows.Err(), "querying mesh index")
}
