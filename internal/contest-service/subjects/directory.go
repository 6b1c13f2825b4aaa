package subjects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/radieske/prop-contests/internal/contest-service/model"
)

// Cache é o cache de leitura do catálogo (Redis em produção)
type Cache interface {
	Get(ctx context.Context, id string) (model.Subject, bool, error)
	Set(ctx context.Context, s model.Subject) error
	Delete(ctx context.Context, id string) error
}

// Directory lê o catálogo de subjects do Postgres com cache read-through.
// Falhas de cache só geram log; o banco é a fonte da verdade.
type Directory struct {
	DB    *sql.DB
	Cache Cache
	Log   *zap.Logger
}

func NewDirectory(db *sql.DB, c Cache, log *zap.Logger) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{DB: db, Cache: c, Log: log}
}

func (d *Directory) Get(ctx context.Context, id string) (model.Subject, error) {
	if d.Cache != nil {
		s, ok, err := d.Cache.Get(ctx, id)
		if err != nil {
			d.Log.Warn("subject cache get failed", zap.String("subject_id", id), zap.Error(err))
		} else if ok {
			return s, nil
		}
	}

	const q = `
		SELECT s.id, s.name, s.projected_value, s.starts_at, r.subject_id IS NOT NULL
		FROM subjects s
		LEFT JOIN subject_results r ON r.subject_id = s.id
		WHERE s.id = $1`
	var s model.Subject
	err := d.DB.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.Name, &s.ProjectedValue, &s.StartsAt, &s.Final)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Subject{}, fmt.Errorf("%w: subject %s", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Subject{}, err
	}

	if d.Cache != nil {
		if err := d.Cache.Set(ctx, s); err != nil {
			d.Log.Warn("subject cache set failed", zap.String("subject_id", id), zap.Error(err))
		}
	}
	return s, nil
}

// Invalidate remove o subject do cache (ex.: estatística final recebida)
func (d *Directory) Invalidate(ctx context.Context, id string) {
	if d.Cache == nil {
		return
	}
	if err := d.Cache.Delete(ctx, id); err != nil {
		d.Log.Warn("subject cache delete failed", zap.String("subject_id", id), zap.Error(err))
	}
}
