// Package keyset provides encrypted cursor-based pagination over GORM and
// raw SQL datasets.
//
// # Overview
//
// keyset implements three pagination strategies behind one opaque token
// contract:
//   - Paginator: keyset pagination using lexicographic comparison against
//     the edge row of the previous page. This scales on large append-heavy
//     datasets and requires a deterministic ordering ending in a unique
//     column.
//   - RawPaginator: the same strategy for caller-supplied aggregate SQL,
//     wrapped as a named subquery.
//   - OffsetPaginator: a compatibility layer over LIMIT/OFFSET for
//     orderings with no usable tie-break.
//
// # Key concepts
//
//   - Codec: authenticated encryption of cursor payloads into URL-safe
//     tokens with a bounded lifetime. A tampered or expired token never
//     decodes.
//   - Orderings: multi-column ordering with explicit per-column order and
//     an explicit NULL placement policy.
//   - Getters: maps model fields to values for minting edge cursors.
//   - Params / Request: transport-level pagination inputs and their
//     validated form.
//
// See the examples directory for runnable usage.
package keyset
