package keyset

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

// offsetPayloadKey is the single field an offset cursor carries.
const offsetPayloadKey = "offset"

// OffsetPaginator serves the same encrypted cursor contract as Paginator
// but positions pages by LIMIT/OFFSET instead of a keyset predicate. Use
// it when an ordering has no usable unique tie-break, e.g. ad hoc grouped
// views. Page cost grows with depth and concurrent writes can shift page
// boundaries, so keep it away from large or hot datasets.
//
// Tokens stay opaque and authenticated: the numeric offset is encrypted
// like any cursor payload, never exposed or accepted as plain text.
type OffsetPaginator[T any] struct {
	codec     *Codec
	orderings Orderings
	settings  paginatorSettings
}

// NewOffsetPaginator validates the dataset configuration and returns a
// ready offset pager.
func NewOffsetPaginator[T any](codec *Codec, orderings Orderings, opts ...PaginatorOption) (*OffsetPaginator[T], error) {
	if codec == nil {
		return nil, fmt.Errorf("cannot build offset paginator: cursor codec is required")
	}

	if err := orderings.validate(); err != nil {
		return nil, fmt.Errorf("cannot build offset paginator: %w", err)
	}

	settings, err := newPaginatorSettings(opts)
	if err != nil {
		return nil, fmt.Errorf("cannot build offset paginator: %w", err)
	}

	return &OffsetPaginator[T]{
		codec:     codec,
		orderings: orderings,
		settings:  settings,
	}, nil
}

// Paginate validates raw params and fetches one page.
func (p *OffsetPaginator[T]) Paginate(ctx context.Context, db *gorm.DB, params Params) (*Page[T], error) {
	request, err := params.Validate(p.codec)
	if err != nil {
		warnRejectedCursor(ctx, p.settings.logger, err)
		return nil, err
	}

	return p.FindPage(ctx, db, request)
}

// FindPage fetches one page for an already validated request. Prev
// traversal derives the preceding window from the cursor's offset; without
// a cursor there is nothing before the dataset start and the page comes
// back empty.
func (p *OffsetPaginator[T]) FindPage(ctx context.Context, db *gorm.DB, request Request) (_ *Page[T], err error) {
	request.Limit = NormalizeLimitMax(request.Limit, p.settings.maxLimit)

	ctx, span := startPageSpan(ctx, pageModeOffset, request)
	defer func() { endPageSpan(span, err) }()

	offset, err := offsetFromPayload(request.Cursor)
	if err != nil {
		return nil, err
	}

	var page *Page[T]
	if request.Direction == DirectionPrev {
		page, err = p.prevWindow(ctx, db, request, offset)
	} else {
		page, err = p.nextWindow(ctx, db, request, offset)
	}
	if err != nil {
		return nil, err
	}

	if p.settings.withTotal {
		total, totalErr := queryTotal[T](db)(ctx)
		if totalErr != nil {
			return nil, newQueryError(totalErr)
		}

		page.Metadata.Total = &total
	}

	recordPage(pageModeOffset, request.Direction, len(page.Data))
	if p.settings.logger != nil {
		p.settings.logger.DebugContext(ctx, "page executed",
			slog.String("mode", pageModeOffset),
			slog.String("direction", string(request.Direction)),
			slog.Int("count", len(page.Data)),
		)
	}

	return page, nil
}

func (p *OffsetPaginator[T]) nextWindow(ctx context.Context, db *gorm.DB, request Request, offset int) (*Page[T], error) {
	rows, err := p.fetch(ctx, db, offset, request.Limit+1)
	if err != nil {
		return nil, newQueryError(err)
	}

	hasMore := len(rows) > request.Limit
	if hasMore {
		rows = rows[:request.Limit]
	}

	metadata := PageMetadata{
		Limit: request.Limit,
		Count: len(rows),
	}

	if len(rows) > 0 {
		if hasMore {
			token, mintErr := p.mint(offset + len(rows))
			if mintErr != nil {
				return nil, mintErr
			}

			metadata.NextCursor = &token
			metadata.HasNextPage = true
		}

		if request.HasCursor() {
			token := request.RawCursor
			metadata.PrevCursor = &token
			metadata.HasPrevPage = true
		}
	}

	return &Page[T]{Data: rows, Metadata: metadata}, nil
}

func (p *OffsetPaginator[T]) prevWindow(ctx context.Context, db *gorm.DB, request Request, offset int) (*Page[T], error) {
	// The window before the cursor may be shorter than the limit when the
	// cursor sits near the dataset start; shrinking it keeps pages disjoint.
	window := min(request.Limit, offset)
	if window == 0 {
		return &Page[T]{Data: []T{}, Metadata: PageMetadata{Limit: request.Limit}}, nil
	}

	start := offset - window
	rows, err := p.fetch(ctx, db, start, window)
	if err != nil {
		return nil, newQueryError(err)
	}

	metadata := PageMetadata{
		Limit: request.Limit,
		Count: len(rows),
	}

	if len(rows) > 0 {
		if start > 0 {
			token, mintErr := p.mint(start)
			if mintErr != nil {
				return nil, mintErr
			}

			metadata.PrevCursor = &token
			metadata.HasPrevPage = true
		}

		if request.HasCursor() {
			token := request.RawCursor
			metadata.NextCursor = &token
			metadata.HasNextPage = true
		}
	}

	return &Page[T]{Data: rows, Metadata: metadata}, nil
}

// FindNextPage fetches the page after the given cursor. An empty cursor
// starts from the beginning of the dataset.
func (p *OffsetPaginator[T]) FindNextPage(ctx context.Context, db *gorm.DB, cursor string, limit int) (*Page[T], error) {
	return p.Paginate(ctx, db, Params{
		Limit:     limit,
		Direction: DirectionNext,
		Cursor:    cursor,
	})
}

// FindPrevPage fetches the page before the given cursor. Without a cursor
// there is nothing before the dataset start and the page comes back empty.
func (p *OffsetPaginator[T]) FindPrevPage(ctx context.Context, db *gorm.DB, cursor string, limit int) (*Page[T], error) {
	return p.Paginate(ctx, db, Params{
		Limit:     limit,
		Direction: DirectionPrev,
		Cursor:    cursor,
	})
}

func (p *OffsetPaginator[T]) fetch(ctx context.Context, db *gorm.DB, offset, limit int) ([]T, error) {
	var rows []T
	err := p.orderings.Apply(db.WithContext(ctx)).Offset(offset).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	return rows, nil
}

func (p *OffsetPaginator[T]) mint(offset int) (string, error) {
	// Stored as int64 to match what a decoded token yields.
	return p.codec.Encode(NewPayload(map[string]any{offsetPayloadKey: int64(offset)}))
}

// offsetFromPayload extracts the window position from an authenticated
// cursor. A nil payload starts at the dataset head.
func offsetFromPayload(payload *Payload) (int, error) {
	if payload == nil {
		return 0, nil
	}

	value, ok := payload.Field(offsetPayloadKey)
	if !ok {
		return 0, fmt.Errorf("%w: missing offset", ErrInvalidCursor)
	}

	offset, ok := value.(int64)
	if !ok || offset < 0 {
		return 0, fmt.Errorf("%w: malformed offset", ErrInvalidCursor)
	}

	return int(offset), nil
}
