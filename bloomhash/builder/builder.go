package builder

import (
	"errors"
	"fmt"
	"time"

	internal "github.com/ZanzyTHEbar/bloomhash/bloomhash"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/bittable"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/common"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/hashing"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/table"

	"github.com/rs/zerolog"
)

// SizeFactor is the number of table bits per wordlist entry. With one hash
// per entry it leaves roughly a third of the bits set, which is what the
// validator's false-positive threshold is calibrated against.
const SizeFactor = 2

var (
	ErrNoHashMethods = errors.New("no hash methods registered")
	ErrInvalidMethod = errors.New("hash method needs a name and a digest")
)

type methodTable struct {
	method hashing.Method
	meta   table.Metadata
	table  *bittable.BitTable
}

// TableBuilder turns one wordlist into one bit table per hash method.
type TableBuilder struct {
	wordlistPath  string
	lineCount     uint64
	size          uint64
	tables        []*methodTable
	logger        zerolog.Logger
	progressEvery uint64
}

// Option configures a TableBuilder.
type Option func(*TableBuilder)

// WithLogger sets the logger used for progress and per-entry tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *TableBuilder) {
		b.logger = logger
	}
}

// WithProgressEvery logs progress every n entries. Zero disables it.
func WithProgressEvery(n uint64) Option {
	return func(b *TableBuilder) {
		b.progressEvery = n
	}
}

// New counts the entries of the wordlist at wordlistPath and fixes the
// table size at SizeFactor bits per entry.
func New(wordlistPath string, opts ...Option) (*TableBuilder, error) {
	b := &TableBuilder{
		wordlistPath:  wordlistPath,
		logger:        internal.GetLogger(),
		progressEvery: internal.DefaultProgressEvery,
	}
	for _, opt := range opts {
		opt(b)
	}

	lines, err := table.CountLines(wordlistPath)
	if err != nil {
		return nil, err
	}
	if lines == 0 {
		return nil, fmt.Errorf("%s: %w", wordlistPath, common.ErrEmptyWordlist)
	}
	b.lineCount = lines
	b.size = lines * SizeFactor

	b.logger.Debug().
		Str("wordlist", wordlistPath).
		Uint64("lines", b.lineCount).
		Uint64("size", b.size).
		Msg("Counted wordlist entries")

	return b, nil
}

// WordlistPath returns the source wordlist.
func (b *TableBuilder) WordlistPath() string { return b.wordlistPath }

// LineCount returns the number of wordlist entries counted by New.
func (b *TableBuilder) LineCount() uint64 { return b.lineCount }

// Size returns the bit count of every table this builder creates.
func (b *TableBuilder) Size() uint64 { return b.size }

// AddHashMethod creates the zeroed table for method and writes its metadata
// record. A method whose name is already registered replaces the earlier
// registration.
func (b *TableBuilder) AddHashMethod(method hashing.Method) error {
	if method.Name == "" || method.Digest == nil {
		return ErrInvalidMethod
	}

	meta := table.New(b.wordlistPath, method.Name, b.size)

	// release a previous handle on the same file before truncating it again
	existing := b.find(method.Name)
	if existing != nil && existing.table != nil {
		if err := existing.table.Close(); err != nil {
			return err
		}
		existing.table = nil
	}

	tbl, err := bittable.Create(meta.TablePath, b.size)
	if err != nil {
		return err
	}
	if err := meta.Write(meta.Path()); err != nil {
		tbl.Close()
		return err
	}

	entry := &methodTable{method: method, meta: meta, table: tbl}
	if existing != nil {
		*existing = *entry
	} else {
		b.tables = append(b.tables, entry)
	}

	b.logger.Debug().
		Str("method", method.Name).
		Str("table", meta.TablePath).
		Str("metadata", meta.Path()).
		Uint64("size", b.size).
		Msg("Registered hash method")

	return nil
}

// AddHashMethodByName resolves name in the default registry and adds it.
func (b *TableBuilder) AddHashMethodByName(name string) error {
	m, err := hashing.Lookup(name)
	if err != nil {
		return err
	}
	return b.AddHashMethod(m)
}

func (b *TableBuilder) find(name string) *methodTable {
	for _, t := range b.tables {
		if t.method.Name == name {
			return t
		}
	}
	return nil
}

// Metadata returns the records of the registered methods in registration
// order.
func (b *TableBuilder) Metadata() []table.Metadata {
	out := make([]table.Metadata, 0, len(b.tables))
	for _, t := range b.tables {
		out = append(out, t.meta)
	}
	return out
}

// ProcessFile reads the wordlist once and sets one bit per entry in every
// registered table. All tables are closed when it returns, on success or
// failure; a failed build leaves tables that must be rebuilt.
func (b *TableBuilder) ProcessFile() (err error) {
	if len(b.tables) == 0 {
		return ErrNoHashMethods
	}
	defer func() {
		if cerr := b.Close(); err == nil {
			err = cerr
		}
	}()

	start := time.Now()
	processed, err := table.EachLine(b.wordlistPath, b.processEntry)
	if err != nil {
		b.logger.Error().Err(err).
			Str("wordlist", b.wordlistPath).
			Uint64("line", processed).
			Msg("Build failed")
		return err
	}

	if processed != b.lineCount {
		b.logger.Warn().
			Str("wordlist", b.wordlistPath).
			Uint64("counted", b.lineCount).
			Uint64("processed", processed).
			Msg("Wordlist changed between count and build")
	}

	b.logger.Info().
		Str("wordlist", b.wordlistPath).
		Uint64("lines", processed).
		Int("tables", len(b.tables)).
		Dur("duration", time.Since(start)).
		Msg("Build completed")

	return nil
}

func (b *TableBuilder) processEntry(lineNo uint64, word []byte) error {
	for _, t := range b.tables {
		if t.table == nil {
			return fmt.Errorf("%s: %w", t.meta.TablePath, common.ErrTableClosed)
		}

		digest := t.method.HexDigest(word)
		idx, err := table.BitIndex(digest, b.size)
		if err != nil {
			return fmt.Errorf("method %s: %w", t.method.Name, err)
		}
		before, after, err := t.table.SetBitTrace(idx)
		if err != nil {
			return err
		}

		if ev := b.logger.Trace(); ev.Enabled() {
			byteIndex, _ := bittable.Locate(idx)
			ev.Str("method", t.method.Name).
				Uint64("line", lineNo).
				Uint64("index", idx).
				Int64("byte", byteIndex).
				Uint64("bit", idx&7).
				Str("before", fmt.Sprintf("%08b", before)).
				Str("after", fmt.Sprintf("%08b", after)).
				Msg("Set bit")
		}
	}

	if b.progressEvery > 0 && lineNo%b.progressEvery == 0 {
		b.logger.Info().
			Uint64("lines", lineNo).
			Uint64("total", b.lineCount).
			Msg("Build progress")
	}
	return nil
}

// Close releases every table still open. ProcessFile calls it; callers
// only need it when abandoning a builder before processing.
func (b *TableBuilder) Close() error {
	var errs []error
	for _, t := range b.tables {
		if t.table == nil {
			continue
		}
		if err := t.table.Close(); err != nil {
			errs = append(errs, err)
		}
		t.table = nil
	}
	return errors.Join(errs...)
}
