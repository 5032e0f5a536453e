package keyset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// paginatorSettings collects the optional knobs shared by both paginator
// flavors.
type paginatorSettings struct {
	maxLimit  int
	alias     string
	logger    *slog.Logger
	withTotal bool
}

type PaginatorOption func(*paginatorSettings)

// WithMaxLimit lowers the per-page row cap below MaxLimit for datasets
// where even a hundred rows per call is too expensive.
func WithMaxLimit(limit int) PaginatorOption {
	return func(s *paginatorSettings) {
		s.maxLimit = limit
	}
}

// WithRawAlias overrides DefaultRawAlias as the CTE name wrapping a raw
// source. Only meaningful for RawPaginator.
func WithRawAlias(alias string) PaginatorOption {
	return func(s *paginatorSettings) {
		s.alias = alias
	}
}

// WithLogger enables debug logging of page executions.
func WithLogger(logger *slog.Logger) PaginatorOption {
	return func(s *paginatorSettings) {
		s.logger = logger
	}
}

// WithTotal makes every page carry the exact dataset row count. The count
// is a separate query per page, so keep it for small or rarely hit
// datasets.
func WithTotal() PaginatorOption {
	return func(s *paginatorSettings) {
		s.withTotal = true
	}
}

func newPaginatorSettings(opts []PaginatorOption) (paginatorSettings, error) {
	settings := paginatorSettings{
		maxLimit: MaxLimit,
		alias:    DefaultRawAlias,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	if settings.maxLimit < MinLimit || settings.maxLimit > MaxLimit {
		return paginatorSettings{}, fmt.Errorf("max limit must be within [%d, %d], got %d", MinLimit, MaxLimit, settings.maxLimit)
	}

	return settings, nil
}

// validatePaginatorConfig enforces the construction-time invariants, so a
// misconfigured dataset fails at wiring instead of mid-traffic:
//
//   - the ordering list is non-empty and every column name is safe;
//   - no ordering column collides with a reserved payload key;
//   - the final (tie-break) column is non-nullable, otherwise equal-key
//     rows would have no deterministic position;
//   - every ordering column has a getter to mint cursors from.
func validatePaginatorConfig[T any](codec *Codec, orderings Orderings, getters Getters[T]) error {
	if codec == nil {
		return fmt.Errorf("cursor codec is required")
	}

	if err := orderings.validate(); err != nil {
		return err
	}

	for _, orderBy := range orderings {
		if isReservedPayloadKey(orderBy.Column) {
			return fmt.Errorf("ordering column '%s' collides with a reserved cursor payload key", orderBy.Column)
		}
	}

	if tieBreak := lo.LastOrEmpty(orderings); tieBreak.Nullable {
		return fmt.Errorf("tie-break column '%s' cannot be nullable", tieBreak.Column)
	}

	return getters.validate(orderings)
}

// Paginator binds a codec, an ordering and a getter set into a reusable
// pager for one logical dataset, so the dataset always paginates with a
// consistent ordering. The db handle passed to each call carries the base
// filter; the paginator contributes the keyset predicate, the ORDER BY and
// the limit.
//
// A Paginator is immutable after construction and safe for concurrent use.
type Paginator[T any] struct {
	codec     *Codec
	orderings Orderings
	getters   Getters[T]
	settings  paginatorSettings
}

// NewPaginator validates the dataset configuration and returns a ready
// pager. Configuration errors are returned here and never per-request.
func NewPaginator[T any](codec *Codec, orderings Orderings, getters Getters[T], opts ...PaginatorOption) (*Paginator[T], error) {
	if err := validatePaginatorConfig(codec, orderings, getters); err != nil {
		return nil, fmt.Errorf("cannot build paginator: %w", err)
	}

	settings, err := newPaginatorSettings(opts)
	if err != nil {
		return nil, fmt.Errorf("cannot build paginator: %w", err)
	}

	return &Paginator[T]{
		codec:     codec,
		orderings: orderings,
		getters:   getters,
		settings:  settings,
	}, nil
}

// warnRejectedCursor logs a cursor the validator refused. Rejections are a
// client-input signal, not a server fault, hence warn level.
func warnRejectedCursor(ctx context.Context, logger *slog.Logger, err error) {
	if logger == nil || !errors.Is(err, ErrInvalidCursor) {
		return
	}

	logger.WarnContext(ctx, "rejected pagination cursor", slog.Any("error", err))
}

// Paginate validates raw params and fetches one page.
func (p *Paginator[T]) Paginate(ctx context.Context, db *gorm.DB, params Params) (*Page[T], error) {
	request, err := params.Validate(p.codec)
	if err != nil {
		warnRejectedCursor(ctx, p.settings.logger, err)
		return nil, err
	}

	return p.FindPage(ctx, db, request)
}

// FindPage fetches one page for an already validated request.
func (p *Paginator[T]) FindPage(ctx context.Context, db *gorm.DB, request Request) (*Page[T], error) {
	request.Limit = NormalizeLimitMax(request.Limit, p.settings.maxLimit)

	var total func(context.Context) (int64, error)
	if p.settings.withTotal {
		total = queryTotal[T](db)
	}

	return pageExecution[T]{
		codec:     p.codec,
		orderings: p.orderings,
		getters:   p.getters,
		request:   request,
		mode:      pageModeQuery,
		logger:    p.settings.logger,
		fetch:     queryFetch[T](db),
		total:     total,
	}.run(ctx)
}

// FindNextPage fetches the page after the given cursor. An empty cursor
// starts from the beginning of the dataset.
func (p *Paginator[T]) FindNextPage(ctx context.Context, db *gorm.DB, cursor string, limit int) (*Page[T], error) {
	return p.Paginate(ctx, db, Params{
		Limit:     limit,
		Direction: DirectionNext,
		Cursor:    cursor,
	})
}

// FindPrevPage fetches the page ending at the given cursor. An empty
// cursor starts from the end of the dataset.
func (p *Paginator[T]) FindPrevPage(ctx context.Context, db *gorm.DB, cursor string, limit int) (*Page[T], error) {
	return p.Paginate(ctx, db, Params{
		Limit:     limit,
		Direction: DirectionPrev,
		Cursor:    cursor,
	})
}

func queryFetch[T any](db *gorm.DB) func(context.Context, tDNF, Orderings, int) ([]T, error) {
	return func(ctx context.Context, predicate tDNF, order Orderings, fetchLimit int) ([]T, error) {
		tx := db.WithContext(ctx)
		if expression := predicate.toGORMExpression(); expression != nil {
			tx = tx.Clauses(expression)
		}

		var rows []T
		if err := order.Apply(tx).Limit(fetchLimit).Find(&rows).Error; err != nil {
			return nil, err
		}

		return rows, nil
	}
}

func queryTotal[T any](db *gorm.DB) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		var total int64
		if err := db.WithContext(ctx).Model(new(T)).Count(&total).Error; err != nil {
			return 0, err
		}

		return total, nil
	}
}

// RawPaginator is the Paginator counterpart for raw SQL sources. The
// caller's statement is wrapped as a named subquery and the keyset
// predicate, ordering and limit are appended around it.
type RawPaginator[T any] struct {
	codec     *Codec
	orderings Orderings
	getters   Getters[T]
	settings  paginatorSettings
}

// NewRawPaginator validates the dataset configuration, including the CTE
// alias, and returns a ready pager for raw sources.
func NewRawPaginator[T any](codec *Codec, orderings Orderings, getters Getters[T], opts ...PaginatorOption) (*RawPaginator[T], error) {
	if err := validatePaginatorConfig(codec, orderings, getters); err != nil {
		return nil, fmt.Errorf("cannot build raw paginator: %w", err)
	}

	settings, err := newPaginatorSettings(opts)
	if err != nil {
		return nil, fmt.Errorf("cannot build raw paginator: %w", err)
	}

	if err = validateRawAlias(settings.alias); err != nil {
		return nil, fmt.Errorf("cannot build raw paginator: %w", err)
	}

	return &RawPaginator[T]{
		codec:     codec,
		orderings: orderings,
		getters:   getters,
		settings:  settings,
	}, nil
}

// Paginate validates raw params and fetches one page of the source.
func (p *RawPaginator[T]) Paginate(ctx context.Context, db *gorm.DB, source RawSource, params Params) (*Page[T], error) {
	request, err := params.Validate(p.codec)
	if err != nil {
		warnRejectedCursor(ctx, p.settings.logger, err)
		return nil, err
	}

	return p.FindPage(ctx, db, source, request)
}

// FindPage fetches one page of the source for an already validated request.
func (p *RawPaginator[T]) FindPage(ctx context.Context, db *gorm.DB, source RawSource, request Request) (*Page[T], error) {
	if err := source.validate(); err != nil {
		return nil, fmt.Errorf("cannot paginate raw source: %w", err)
	}

	request.Limit = NormalizeLimitMax(request.Limit, p.settings.maxLimit)

	var total func(context.Context) (int64, error)
	if p.settings.withTotal {
		total = rawTotal(db, source, p.settings.alias)
	}

	return pageExecution[T]{
		codec:     p.codec,
		orderings: p.orderings,
		getters:   p.getters,
		request:   request,
		mode:      pageModeRaw,
		logger:    p.settings.logger,
		fetch:     rawFetch[T](db, source, p.settings.alias),
		total:     total,
	}.run(ctx)
}

// FindNextPage fetches the page of the source after the given cursor.
func (p *RawPaginator[T]) FindNextPage(ctx context.Context, db *gorm.DB, source RawSource, cursor string, limit int) (*Page[T], error) {
	return p.Paginate(ctx, db, source, Params{
		Limit:     limit,
		Direction: DirectionNext,
		Cursor:    cursor,
	})
}

// FindPrevPage fetches the page of the source ending at the given cursor.
func (p *RawPaginator[T]) FindPrevPage(ctx context.Context, db *gorm.DB, source RawSource, cursor string, limit int) (*Page[T], error) {
	return p.Paginate(ctx, db, source, Params{
		Limit:     limit,
		Direction: DirectionPrev,
		Cursor:    cursor,
	})
}
