package query

import (
	internal "github.com/ZanzyTHEbar/bloomhash/bloomhash"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/bittable"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/hashing"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/table"

	"github.com/rs/zerolog"
)

// TableQuery answers membership tests against one built table.
// A negative answer is exact; a positive answer may be a false positive.
type TableQuery struct {
	meta     table.Metadata
	method   hashing.Method
	table    *bittable.BitTable
	registry *hashing.Registry
	logger   zerolog.Logger
}

// Option configures a TableQuery.
type Option func(*TableQuery)

// WithRegistry resolves the table's method name in r instead of the
// default registry.
func WithRegistry(r *hashing.Registry) Option {
	return func(q *TableQuery) {
		q.registry = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(q *TableQuery) {
		q.logger = logger
	}
}

// Open reads the metadata record at metadataPath, resolves its hash method
// and opens the table read-only.
func Open(metadataPath string, opts ...Option) (*TableQuery, error) {
	q := &TableQuery{
		registry: hashing.Default(),
		logger:   internal.GetLogger(),
	}
	for _, opt := range opts {
		opt(q)
	}

	meta, err := table.ReadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}
	method, err := q.registry.Lookup(meta.MethodName)
	if err != nil {
		return nil, err
	}
	tbl, err := bittable.Open(meta.TablePath, meta.Size)
	if err != nil {
		return nil, err
	}

	q.meta = meta
	q.method = method
	q.table = tbl

	q.logger.Debug().
		Str("metadata", metadataPath).
		Str("table", meta.TablePath).
		Str("method", meta.MethodName).
		Uint64("size", meta.Size).
		Msg("Opened table")

	return q, nil
}

// Metadata returns the record the query was opened from.
func (q *TableQuery) Metadata() table.Metadata { return q.meta }

// Method returns the resolved hash method.
func (q *TableQuery) Method() hashing.Method { return q.method }

// TestDigest reports whether the bit addressed by a precomputed hex digest
// is set. Invalid hex yields common.ErrInvalidDigest.
func (q *TableQuery) TestDigest(hexDigest string) (bool, error) {
	idx, err := table.BitIndex(hexDigest, q.meta.Size)
	if err != nil {
		return false, err
	}
	return q.table.GetBit(idx)
}

// TestValue hashes value with the table's method and tests the digest.
// It is true for every entry of the wordlist the table was built from.
func (q *TableQuery) TestValue(value string) (bool, error) {
	return q.TestDigest(q.method.HexDigest([]byte(value)))
}

// FillRatio returns the fraction of set bits in the table.
func (q *TableQuery) FillRatio() (float64, error) {
	return q.table.FillRatio()
}

// Close releases the table handle.
func (q *TableQuery) Close() error {
	return q.table.Close()
}
