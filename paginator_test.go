package keyset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// tAccessLogDataset is the base query every paginator call decorates: the
// paginator itself only appends the keyset predicate, ORDER BY and LIMIT.
func tAccessLogDataset(db *gorm.DB) *gorm.DB {
	return db.Select("*").Table("access_logs").Where("status >= 500")
}

func Test_NewPaginator_Validation(t *testing.T) {
	codec := newTestCodec(t)
	orderings := Orderings{
		{Column: "created_at", Order: OrderDESC},
		{Column: "id", Order: OrderDESC},
	}

	tests := []struct {
		name      string
		codec     *Codec
		orderings Orderings
		getters   Getters[tAccessLog]
		opts      []PaginatorOption
		wantErr   bool
	}{
		{
			name:      "standard case, ok",
			codec:     codec,
			orderings: orderings,
			getters:   tAccessLogGetters,
			wantErr:   false,
		},
		{
			name:      "nil codec is forbidden",
			codec:     nil,
			orderings: orderings,
			getters:   tAccessLogGetters,
			wantErr:   true,
		},
		{
			name:      "empty ordering list is forbidden",
			codec:     codec,
			orderings: Orderings{},
			getters:   tAccessLogGetters,
			wantErr:   true,
		},
		{
			name:      "forbidden symbols in column name",
			codec:     codec,
			orderings: Orderings{{Column: "id; DROP TABLE access_logs", Order: OrderASC}},
			getters:   tAccessLogGetters,
			wantErr:   true,
		},
		{
			name:      "ordering column collides with reserved payload key",
			codec:     codec,
			orderings: Orderings{{Column: "v", Order: OrderASC}},
			getters:   Getters[tAccessLog]{"v": func(tAccessLog) any { return nil }},
			wantErr:   true,
		},
		{
			name:      "nullable tie-break column is forbidden",
			codec:     codec,
			orderings: Orderings{{Column: "processing_ms", Order: OrderASC, Nullable: true}},
			getters:   tAccessLogGetters,
			wantErr:   true,
		},
		{
			name:      "missing getter for ordering column",
			codec:     codec,
			orderings: Orderings{{Column: "status", Order: OrderASC}},
			getters:   tAccessLogGetters,
			wantErr:   true,
		},
		{
			name:      "max limit below range",
			codec:     codec,
			orderings: orderings,
			getters:   tAccessLogGetters,
			opts:      []PaginatorOption{WithMaxLimit(0)},
			wantErr:   true,
		},
		{
			name:      "max limit above range",
			codec:     codec,
			orderings: orderings,
			getters:   tAccessLogGetters,
			opts:      []PaginatorOption{WithMaxLimit(MaxLimit + 1)},
			wantErr:   true,
		},
		{
			name:      "custom max limit within range, ok",
			codec:     codec,
			orderings: orderings,
			getters:   tAccessLogGetters,
			opts:      []PaginatorOption{WithMaxLimit(50)},
			wantErr:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, gotErr := NewPaginator[tAccessLog](tt.codec, tt.orderings, tt.getters, tt.opts...); (gotErr != nil) != tt.wantErr {
				t.Errorf("%s: got error = %v, want error = %v", tt.name, gotErr, tt.wantErr)
			}
		})
	}
}

func Test_NewRawPaginator_Validation(t *testing.T) {
	codec := newTestCodec(t)
	orderings := Orderings{
		{Column: "created_at", Order: OrderDESC},
		{Column: "id", Order: OrderDESC},
	}

	tests := []struct {
		name    string
		codec   *Codec
		opts    []PaginatorOption
		wantErr bool
	}{
		{
			name:    "standard case, ok",
			codec:   codec,
			wantErr: false,
		},
		{
			name:    "custom alias, ok",
			codec:   codec,
			opts:    []PaginatorOption{WithRawAlias("hourly_counts")},
			wantErr: false,
		},
		{
			name:    "empty alias is forbidden",
			codec:   codec,
			opts:    []PaginatorOption{WithRawAlias("")},
			wantErr: true,
		},
		{
			name:    "alias with forbidden symbols",
			codec:   codec,
			opts:    []PaginatorOption{WithRawAlias("data set")},
			wantErr: true,
		},
		{
			name:    "nil codec is forbidden",
			codec:   nil,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, gotErr := NewRawPaginator[tAccessLog](tt.codec, orderings, tAccessLogGetters, tt.opts...); (gotErr != nil) != tt.wantErr {
				t.Errorf("%s: got error = %v, want error = %v", tt.name, gotErr, tt.wantErr)
			}
		})
	}
}

func Test_Paginator_Paginate_FirstPage(t *testing.T) {
	sqlMockFnList := []func() (string, *gorm.DB, sqlmock.Sqlmock, error){
		newGORMMySQLMock,
		newGORMPostgresMock,
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for _, sqlMockFn := range sqlMockFnList {
		dialect, db, dbMock, err := sqlMockFn()
		t.Run(dialect, func(t *testing.T) {
			if err != nil {
				t.Fatalf("gorm open: %v", err)
			}

			codec := newTestCodec(t)
			paginator, err := NewPaginator[tAccessLog](codec, Orderings{
				{Column: "created_at", Order: OrderDESC},
				{Column: "id", Order: OrderDESC},
			}, tAccessLogGetters)
			require.NoError(t, err)

			rows := sqlmock.NewRows([]string{"id", "request_id", "created_at"}).
				AddRow(5, "req-5", base.Add(5*time.Minute)).
				AddRow(4, "req-4", base.Add(4*time.Minute)).
				AddRow(3, "req-3", base.Add(3*time.Minute))
			dbMock.ExpectQuery("^SELECT \\* FROM [`'\"]access_logs[`'\"] WHERE status >= 500 ORDER BY created_at DESC, id DESC LIMIT 3$").
				WillReturnRows(rows)

			page, err := paginator.Paginate(context.Background(), tAccessLogDataset(db), Params{Limit: 2})
			require.NoError(t, err)

			require.Equal(t, []int64{5, 4}, pageIDs(page))
			require.True(t, page.Metadata.HasNextPage)
			require.NotNil(t, page.Metadata.NextCursor)
			assert.False(t, page.Metadata.HasPrevPage)
			assert.Nil(t, page.Metadata.PrevCursor)

			// The minted token names the last row of the page.
			payload, err := codec.Decode(*page.Metadata.NextCursor)
			require.NoError(t, err)
			id, ok := payload.Field("id")
			require.True(t, ok)
			assert.Equal(t, int64(4), id)
			createdAt, ok := payload.Field("created_at")
			require.True(t, ok)
			assert.Equal(t, base.Add(4*time.Minute).Format(time.RFC3339), createdAt)

			assert.NoError(t, dbMock.ExpectationsWereMet())
		})
	}
}

func Test_Paginator_Paginate_WithCursor(t *testing.T) {
	sqlMockFnList := []func() (string, *gorm.DB, sqlmock.Sqlmock, error){
		newGORMMySQLMock,
		newGORMPostgresMock,
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	edge := base.Add(4 * time.Minute)

	for _, sqlMockFn := range sqlMockFnList {
		dialect, db, dbMock, err := sqlMockFn()
		t.Run(dialect, func(t *testing.T) {
			if err != nil {
				t.Fatalf("gorm open: %v", err)
			}

			codec := newTestCodec(t)
			paginator, err := NewPaginator[tAccessLog](codec, Orderings{
				{Column: "created_at", Order: OrderDESC},
				{Column: "id", Order: OrderDESC},
			}, tAccessLogGetters)
			require.NoError(t, err)

			token, err := codec.Encode(NewPayload(map[string]any{
				"created_at": edge,
				"id":         int64(4),
			}))
			require.NoError(t, err)

			rows := sqlmock.NewRows([]string{"id", "request_id", "created_at"}).
				AddRow(3, "req-3", base.Add(3*time.Minute)).
				AddRow(2, "req-2", base.Add(2*time.Minute))
			dbMock.ExpectQuery("^SELECT \\* FROM [`'\"]access_logs[`'\"] WHERE status >= 500 AND \\(created_at < (?:\\$\\d|\\?) OR \\(created_at = (?:\\$\\d|\\?) AND id < (?:\\$\\d|\\?)\\)\\) ORDER BY created_at DESC, id DESC LIMIT 3$").
				WithArgs(edge, edge, 4).
				WillReturnRows(rows)

			page, err := paginator.Paginate(context.Background(), tAccessLogDataset(db), Params{
				Limit:     2,
				Direction: DirectionNext,
				Cursor:    token,
			})
			require.NoError(t, err)

			require.Equal(t, []int64{3, 2}, pageIDs(page))
			assert.False(t, page.Metadata.HasNextPage)
			assert.Nil(t, page.Metadata.NextCursor)
			// The incoming token itself marks the page's other edge.
			require.NotNil(t, page.Metadata.PrevCursor)
			assert.True(t, page.Metadata.HasPrevPage)
			assert.Equal(t, token, *page.Metadata.PrevCursor)

			assert.NoError(t, dbMock.ExpectationsWereMet())
		})
	}
}

func Test_Paginator_FindPrevPage(t *testing.T) {
	sqlMockFnList := []func() (string, *gorm.DB, sqlmock.Sqlmock, error){
		newGORMMySQLMock,
		newGORMPostgresMock,
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	edge := base.Add(4 * time.Minute)

	for _, sqlMockFn := range sqlMockFnList {
		dialect, db, dbMock, err := sqlMockFn()
		t.Run(dialect, func(t *testing.T) {
			if err != nil {
				t.Fatalf("gorm open: %v", err)
			}

			codec := newTestCodec(t)
			paginator, err := NewPaginator[tAccessLog](codec, Orderings{
				{Column: "created_at", Order: OrderDESC},
				{Column: "id", Order: OrderDESC},
			}, tAccessLogGetters)
			require.NoError(t, err)

			token, err := codec.Encode(NewPayload(map[string]any{
				"created_at": edge,
				"id":         int64(4),
			}))
			require.NoError(t, err)

			// The query turns around: inverted ORDER BY, at-or-before bound,
			// rows arriving nearest-first.
			rows := sqlmock.NewRows([]string{"id", "request_id", "created_at"}).
				AddRow(4, "req-4", base.Add(4*time.Minute)).
				AddRow(5, "req-5", base.Add(5*time.Minute)).
				AddRow(6, "req-6", base.Add(6*time.Minute))
			dbMock.ExpectQuery("^SELECT \\* FROM [`'\"]access_logs[`'\"] WHERE status >= 500 AND \\(created_at > (?:\\$\\d|\\?) OR \\(created_at = (?:\\$\\d|\\?) AND id >= (?:\\$\\d|\\?)\\)\\) ORDER BY created_at ASC, id ASC LIMIT 3$").
				WithArgs(edge, edge, 4).
				WillReturnRows(rows)

			page, err := paginator.FindPrevPage(context.Background(), tAccessLogDataset(db), token, 2)
			require.NoError(t, err)

			// Natural order is restored after the inverted fetch.
			require.Equal(t, []int64{5, 4}, pageIDs(page))
			require.True(t, page.Metadata.HasPrevPage)
			require.NotNil(t, page.Metadata.PrevCursor)
			assert.True(t, page.Metadata.HasNextPage)
			require.NotNil(t, page.Metadata.NextCursor)
			assert.Equal(t, token, *page.Metadata.NextCursor)

			// The fresh prev token comes from the lookahead row, so following
			// it yields the adjacent page without overlap.
			payload, err := codec.Decode(*page.Metadata.PrevCursor)
			require.NoError(t, err)
			id, ok := payload.Field("id")
			require.True(t, ok)
			assert.Equal(t, int64(6), id)

			assert.NoError(t, dbMock.ExpectationsWereMet())
		})
	}
}

func Test_Paginator_FindNextPage_WithTotal(t *testing.T) {
	sqlMockFnList := []func() (string, *gorm.DB, sqlmock.Sqlmock, error){
		newGORMMySQLMock,
		newGORMPostgresMock,
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for _, sqlMockFn := range sqlMockFnList {
		dialect, db, dbMock, err := sqlMockFn()
		t.Run(dialect, func(t *testing.T) {
			if err != nil {
				t.Fatalf("gorm open: %v", err)
			}

			codec := newTestCodec(t)
			paginator, err := NewPaginator[tAccessLog](codec, Orderings{
				{Column: "created_at", Order: OrderDESC},
				{Column: "id", Order: OrderDESC},
			}, tAccessLogGetters, WithTotal())
			require.NoError(t, err)

			rows := sqlmock.NewRows([]string{"id", "request_id", "created_at"}).
				AddRow(5, "req-5", base.Add(5*time.Minute)).
				AddRow(4, "req-4", base.Add(4*time.Minute))
			dbMock.ExpectQuery("^SELECT \\* FROM [`'\"]access_logs[`'\"] WHERE status >= 500 ORDER BY created_at DESC, id DESC LIMIT 3$").
				WillReturnRows(rows)
			// The count carries the base filter but none of the paging bits.
			dbMock.ExpectQuery("^SELECT count\\(\\*\\) FROM [`'\"]access_logs[`'\"] WHERE status >= 500$").
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(9))

			page, err := paginator.FindNextPage(context.Background(), tAccessLogDataset(db), "", 2)
			require.NoError(t, err)

			require.Equal(t, []int64{5, 4}, pageIDs(page))
			assert.False(t, page.Metadata.HasNextPage)
			require.NotNil(t, page.Metadata.Total)
			assert.Equal(t, int64(9), *page.Metadata.Total)

			assert.NoError(t, dbMock.ExpectationsWereMet())
		})
	}
}

func Test_Paginator_Paginate_InvalidCursor(t *testing.T) {
	_, db, dbMock, err := newGORMMySQLMock()
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}

	codec := newTestCodec(t)
	paginator, err := NewPaginator[tAccessLog](codec, Orderings{
		{Column: "created_at", Order: OrderDESC},
		{Column: "id", Order: OrderDESC},
	}, tAccessLogGetters)
	require.NoError(t, err)

	_, err = paginator.Paginate(context.Background(), tAccessLogDataset(db), Params{
		Limit:  2,
		Cursor: "not-a-cursor",
	})
	require.ErrorIs(t, err, ErrInvalidCursor)
	// Rejected before any SQL was issued.
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func Test_Paginator_Paginate_QueryError(t *testing.T) {
	_, db, dbMock, err := newGORMMySQLMock()
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}

	codec := newTestCodec(t)
	paginator, err := NewPaginator[tAccessLog](codec, Orderings{
		{Column: "created_at", Order: OrderDESC},
		{Column: "id", Order: OrderDESC},
	}, tAccessLogGetters)
	require.NoError(t, err)

	cause := errors.New("broken pipe")
	dbMock.ExpectQuery(".*").WillReturnError(cause)

	_, err = paginator.Paginate(context.Background(), tAccessLogDataset(db), Params{Limit: 2})

	var queryErr *QueryError
	require.ErrorAs(t, err, &queryErr)
	assert.ErrorIs(t, err, cause)
}

func Test_Paginator_MaxLimitClamp(t *testing.T) {
	_, db, dbMock, err := newGORMMySQLMock()
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}

	codec := newTestCodec(t)
	paginator, err := NewPaginator[tAccessLog](codec, Orderings{
		{Column: "created_at", Order: OrderDESC},
		{Column: "id", Order: OrderDESC},
	}, tAccessLogGetters, WithMaxLimit(10))
	require.NoError(t, err)

	dbMock.ExpectQuery("^SELECT \\* FROM [`'\"]access_logs[`'\"] WHERE status >= 500 ORDER BY created_at DESC, id DESC LIMIT 11$").
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "created_at"}))

	page, err := paginator.Paginate(context.Background(), tAccessLogDataset(db), Params{Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, 10, page.Metadata.Limit)
	assert.Equal(t, 0, page.Metadata.Count)

	assert.NoError(t, dbMock.ExpectationsWereMet())
}
