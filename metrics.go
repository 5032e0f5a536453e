package keyset

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics label values for the execution mode.
const (
	pageModeQuery  = "query"
	pageModeRaw    = "raw"
	pageModeOffset = "offset"
)

const (
	decodeResultOK      = "ok"
	decodeResultInvalid = "invalid"
	decodeResultExpired = "expired"
)

var (
	// CursorDecodesTotal counts cursor decode attempts.
	// Labels: result (ok, invalid, expired). Expired tokens are rejected
	// just like invalid ones but tracked separately.
	CursorDecodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyset_cursor_decodes_total",
			Help: "Total number of pagination cursor decode attempts",
		},
		[]string{"result"},
	)

	// PagesTotal counts executed page fetches.
	// Labels: mode (query, raw, offset), direction (next, prev).
	PagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyset_pages_total",
			Help: "Total number of executed page fetches",
		},
		[]string{"mode", "direction"},
	)

	// PageSizeRows tracks the distribution of returned page sizes.
	// Labels: mode (query, raw, offset).
	PageSizeRows = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keyset_page_size_rows",
			Help:    "Returned page size distribution",
			Buckets: []float64{1, 5, 10, 20, 50, 100},
		},
		[]string{"mode"},
	)
)

func recordCursorDecode(result string) {
	CursorDecodesTotal.WithLabelValues(result).Inc()
}

func decodeResultForErr(err error) string {
	if errors.Is(err, ErrExpiredCursor) {
		return decodeResultExpired
	}

	return decodeResultInvalid
}

func recordPage(mode string, direction Direction, count int) {
	PagesTotal.WithLabelValues(mode, string(direction)).Inc()
	PageSizeRows.WithLabelValues(mode).Observe(float64(count))
}
