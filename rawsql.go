package keyset

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// DefaultRawAlias names the wrapping subquery when the caller does not pick
// an alias.
const DefaultRawAlias = "dataset"

// RawSource is a caller-supplied SQL statement with its bound arguments.
// Aggregate and analytical statements (bucketed counts, grouped stats)
// cannot be expressed through the structured filter API; RawSource lets
// them paginate through the same keyset machinery.
//
// The statement must be a complete SELECT producing the columns named by
// the paginator's ordering. Values go through Args, never interpolated
// into the SQL text. Placeholders are written as "?" regardless of the
// target dialect; the engine rebinds them to the connection's form.
type RawSource struct {
	SQL  string
	Args []any
}

func (s RawSource) validate() error {
	if strings.TrimSpace(s.SQL) == "" {
		return fmt.Errorf("raw source SQL is empty")
	}

	return nil
}

func validateRawAlias(alias string) error {
	if alias == "" {
		return fmt.Errorf("raw source alias is empty")
	}

	// Same symbol whitelist as ordering columns; the alias lands in SQL
	// text verbatim.
	if !lo.Every(_availableColumnNameSymbols, []rune(alias)) {
		return fmt.Errorf("raw source alias contains forbidden symbols '%s'", alias)
	}

	return nil
}

// cteQuery is the assembled page statement for a raw source:
//
//	WITH <alias> AS (<inner>) SELECT * FROM <alias>
//	[WHERE <predicate>] ORDER BY <order> LIMIT ?
//
// Placeholder values line up left to right: caller args first, then
// predicate args, then the limit.
type cteQuery struct {
	alias     string
	inner     string
	innerArgs []any
	predicate tDNF
	order     Orderings
	limit     int
	dialect   string
}

func (q cteQuery) render() (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(q.innerArgs)+1)

	fmt.Fprintf(&sb, "WITH %s AS (%s) SELECT * FROM %s", q.alias, q.inner, q.alias)
	args = append(args, q.innerArgs...)

	if len(q.predicate) > 0 {
		predicateSQL, predicateArgs := q.predicate.toSQLClause()
		fmt.Fprintf(&sb, " WHERE %s", predicateSQL)
		args = append(args, lo.ToAnySlice(predicateArgs)...)
	}

	fmt.Fprintf(&sb, " ORDER BY %s LIMIT ?", q.order.toSQLDialect(q.dialect))
	args = append(args, q.limit)

	return rebind(q.dialect, sb.String()), args
}

// rebind rewrites "?" placeholders into the dialect's positional form.
// MySQL and SQLite take "?" natively; Postgres wants $1..$n. Raw SQL
// bypasses gorm's clause builder, so the rewrite has to happen here.
func rebind(dialect, query string) string {
	if dialect != dialectPostgres {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)

	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}

		sb.WriteRune(r)
	}

	return sb.String()
}

func rawFetch[T any](db *gorm.DB, source RawSource, alias string) func(context.Context, tDNF, Orderings, int) ([]T, error) {
	return func(ctx context.Context, predicate tDNF, order Orderings, fetchLimit int) ([]T, error) {
		query, args := cteQuery{
			alias:     alias,
			inner:     source.SQL,
			innerArgs: source.Args,
			predicate: predicate,
			order:     order,
			limit:     fetchLimit,
			dialect:   db.Name(),
		}.render()

		var rows []T
		if err := db.WithContext(ctx).Raw(query, args...).Find(&rows).Error; err != nil {
			return nil, err
		}

		return rows, nil
	}
}

func rawTotal(db *gorm.DB, source RawSource, alias string) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		query := fmt.Sprintf("WITH %s AS (%s) SELECT COUNT(*) FROM %s", alias, source.SQL, alias)
		query = rebind(db.Name(), query)

		var total int64
		if err := db.WithContext(ctx).Raw(query, source.Args...).Scan(&total).Error; err != nil {
			return 0, err
		}

		return total, nil
	}
}
