package keyset

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/samber/lo"
)

// Getters is a dictionary of per-column value extractors for the paginated
// row type. It must cover every column used in the ordering; values feed
// minted cursors. Example:
//
//	keyset.Getters[models.AccessLog]{
//		"created_at": func(row models.AccessLog) any { return row.CreatedAt },
//		"id":         func(row models.AccessLog) any { return row.ID },
//	}
type Getters[T any] map[string]func(T) any

func (g Getters[T]) validate(orderings Orderings) error {
	for _, orderBy := range orderings {
		if _, ok := g[orderBy.Column]; !ok {
			return fmt.Errorf("cannot find getter for column '%s' met in ordering", orderBy.Column)
		}
	}

	return nil
}

// PageMetadata describes a page's position inside the dataset.
//
// NextCursor and PrevCursor are resume tokens for the adjacent pages, nil
// when no such page exists. HasNextPage and HasPrevPage always agree with
// them. Total is only set when the paginator was asked to count the
// dataset.
type PageMetadata struct {
	Limit       int     `json:"limit"`
	Count       int     `json:"count"`
	HasNextPage bool    `json:"hasNextPage"`
	HasPrevPage bool    `json:"hasPrevPage"`
	NextCursor  *string `json:"nextCursor"`
	PrevCursor  *string `json:"prevCursor"`
	Total       *int64  `json:"total,omitempty"`
}

// Page is one bounded slice of the dataset in its configured order,
// regardless of traversal direction.
type Page[T any] struct {
	Data     []T          `json:"data"`
	Metadata PageMetadata `json:"metadata"`
}

// pageExecution runs the over-fetch-by-one strategy for a single validated
// request against an abstract row fetcher. Both the structured query path
// and the raw SQL path reduce to this.
type pageExecution[T any] struct {
	codec     *Codec
	orderings Orderings
	getters   Getters[T]
	request   Request
	mode      string
	logger    *slog.Logger
	fetch     func(ctx context.Context, predicate tDNF, order Orderings, fetchLimit int) ([]T, error)
	total     func(ctx context.Context) (int64, error)
}

// run fetches one page:
//
//  1. Expand the cursor into a keyset predicate.
//  2. For prev traversal, invert the ordering so the rows nearest the
//     cursor come first.
//  3. Fetch limit+1 rows; the extra row only signals that more exist.
//  4. Trim, then reverse prev results back into natural order.
//  5. Mint edge cursors: the edge in traversal direction from the page
//     boundary when more rows exist, the opposite edge by passing the
//     incoming token through.
func (e pageExecution[T]) run(ctx context.Context) (_ *Page[T], err error) {
	ctx, span := startPageSpan(ctx, e.mode, e.request)
	defer func() { endPageSpan(span, err) }()

	predicate, err := buildKeysetPredicate(e.request.Cursor, e.orderings, e.request.Direction)
	if err != nil {
		return nil, err
	}

	fetchOrderings := e.orderings
	if e.request.Direction == DirectionPrev {
		fetchOrderings = e.orderings.Invert()
	}

	rows, err := e.fetch(ctx, predicate, fetchOrderings, e.request.Limit+1)
	if err != nil {
		return nil, newQueryError(err)
	}

	hasMore := len(rows) > e.request.Limit

	// The extra row never reaches the caller. For prev traversal it is the
	// row just beyond the new page start and anchors the minted cursor.
	var beyond *T
	if hasMore {
		lookahead := rows[e.request.Limit]
		beyond = &lookahead
		rows = rows[:e.request.Limit]
	}

	if e.request.Direction == DirectionPrev {
		slices.Reverse(rows)
	}

	metadata, err := e.buildMetadata(rows, beyond, hasMore)
	if err != nil {
		return nil, err
	}

	if e.total != nil {
		total, totalErr := e.total(ctx)
		if totalErr != nil {
			return nil, newQueryError(totalErr)
		}

		metadata.Total = &total
	}

	recordPage(e.mode, e.request.Direction, len(rows))
	if e.logger != nil {
		e.logger.DebugContext(ctx, "page executed",
			slog.String("mode", e.mode),
			slog.String("direction", string(e.request.Direction)),
			slog.Int("count", len(rows)),
			slog.Bool("has_more", hasMore),
		)
	}

	return &Page[T]{
		Data:     rows,
		Metadata: metadata,
	}, nil
}

// buildMetadata derives the edge cursors and page flags.
//
// A minted token names the last row on its "before" side: next resumes
// strictly past that row, prev returns the page ending at it. The token
// minted for prev traversal therefore comes from the lookahead row, not
// from the page itself, so that following it yields the adjacent page with
// no overlap.
func (e pageExecution[T]) buildMetadata(page []T, beyond *T, hasMore bool) (PageMetadata, error) {
	metadata := PageMetadata{
		Limit: e.request.Limit,
		Count: len(page),
	}

	// An empty page has no edges to continue from.
	if len(page) == 0 {
		return metadata, nil
	}

	switch e.request.Direction {
	case DirectionPrev:
		if hasMore {
			token, err := e.mint(*beyond)
			if err != nil {
				return PageMetadata{}, err
			}

			metadata.PrevCursor = &token
			metadata.HasPrevPage = true
		}

		if e.request.HasCursor() {
			token := e.request.RawCursor
			metadata.NextCursor = &token
			metadata.HasNextPage = true
		}
	default:
		if hasMore {
			token, err := e.mint(lo.LastOrEmpty(page))
			if err != nil {
				return PageMetadata{}, err
			}

			metadata.NextCursor = &token
			metadata.HasNextPage = true
		}

		if e.request.HasCursor() {
			token := e.request.RawCursor
			metadata.PrevCursor = &token
			metadata.HasPrevPage = true
		}
	}

	return metadata, nil
}

func (e pageExecution[T]) mint(row T) (string, error) {
	fields := make(map[string]any, len(e.orderings))
	for _, orderBy := range e.orderings {
		getter, ok := e.getters[orderBy.Column]
		if !ok {
			return "", fmt.Errorf("cannot find getter for column '%s' met in ordering", orderBy.Column)
		}

		fields[orderBy.Column] = getter(row)
	}

	payload := NewPayload(fields)
	if err := payload.validateFields(e.orderings); err != nil {
		return "", fmt.Errorf("cannot mint cursor: %w", err)
	}

	return e.codec.Encode(payload)
}
