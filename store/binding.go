package store

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/index"
	"github.com/hupe1980/wormdb/rowset"
)

// binding is an attached index with its projection, with the key type erased.
type binding[T any] interface {
	target() any
	name() string
	builder(capacity int) pairBuilder[T]
	clear() error
	lookupRow(v T) (*rowset.Set, error)
}

type pairBuilder[T any] interface {
	add(row int, v T)
	rebuild() (int, error)
}

type indexBinding[T any, K cmp.Ordered] struct {
	idx     index.Index[K]
	project func(T) core.Nullable[K]
}

func (b *indexBinding[T, K]) target() any  { return b.idx }
func (b *indexBinding[T, K]) name() string { return b.idx.Name() }
func (b *indexBinding[T, K]) clear() error { return b.idx.Clear() }

func (b *indexBinding[T, K]) lookupRow(v T) (*rowset.Set, error) {
	return b.idx.Lookup(b.project(v))
}

func (b *indexBinding[T, K]) builder(capacity int) pairBuilder[T] {
	return &keyPairs[T, K]{b: b, pairs: make([]core.KeyToIndex[K], 0, capacity)}
}

type keyPairs[T any, K cmp.Ordered] struct {
	b     *indexBinding[T, K]
	pairs []core.KeyToIndex[K]
}

func (p *keyPairs[T, K]) add(row int, v T) {
	p.pairs = append(p.pairs, core.KeyToIndex[K]{Key: p.b.project(v), Row: row})
}

func (p *keyPairs[T, K]) rebuild() (int, error) {
	return len(p.pairs), p.b.idx.Rebuild(p.pairs)
}

// Attach binds idx to s. Every append session close rebuilds idx from
// project applied to all rows. Attaching does not index existing rows;
// call Reindex for that.
func Attach[T any, K cmp.Ordered](s *RowStore[T], idx index.Index[K], project func(T) core.Nullable[K]) error {
	if idx == nil || project == nil {
		return fmt.Errorf("%w: attach needs an index and a projection", core.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readableLocked(); err != nil {
		return err
	}
	for _, b := range s.bindings {
		if b.target() == any(idx) {
			return fmt.Errorf("%w: index %s already attached to %s", core.ErrInvalidArgument, idx.Name(), s.opts.name)
		}
	}
	s.bindings = append(s.bindings, &indexBinding[T, K]{idx: idx, project: project})
	return nil
}

// Detach unbinds idx. It reports whether idx was attached.
func (s *RowStore[T]) Detach(idx any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.bindings {
		if b.target() == idx {
			s.bindings = append(s.bindings[:i], s.bindings[i+1:]...)
			return true
		}
	}
	return false
}

// HasIndex reports whether idx is attached to s.
func (s *RowStore[T]) HasIndex(idx any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bindings {
		if b.target() == idx {
			return true
		}
	}
	return false
}

// reindex scans all rows once, projects them for every binding and rebuilds
// the indexes in parallel, bounded by the resource controller.
func (s *RowStore[T]) reindex(ctx context.Context) error {
	bindings, _ := s.snapshot()
	if len(bindings) == 0 {
		return nil
	}
	s.mu.Lock()
	n := s.count
	s.mu.Unlock()

	builders := make([]pairBuilder[T], len(bindings))
	for i, b := range bindings {
		builders[i] = b.builder(n)
	}
	err := s.scan(0, n, func(row int, v T) error {
		for _, pb := range builders {
			pb.add(row, v)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reindex %s: %w", s.opts.name, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, pb := range builders {
		name := bindings[i].name()
		g.Go(func() error {
			return s.opts.controller.RunBackground(ctx, func() error {
				start := time.Now()
				rows, err := pb.rebuild()
				s.opts.metrics.RecordRebuild(name, rows, time.Since(start), err)
				if err != nil {
					s.opts.logger.Error("index rebuild failed",
						slog.String("table", s.opts.name), slog.String("index", name), slog.Any("error", err))
					return fmt.Errorf("rebuild index %s: %w", name, err)
				}
				s.opts.logger.Debug("index rebuilt",
					slog.String("table", s.opts.name), slog.String("index", name),
					slog.Int("rows", rows), slog.Duration("duration", time.Since(start)))
				return nil
			})
		})
	}
	return g.Wait()
}
