package validator

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	internal "github.com/ZanzyTHEbar/bloomhash/bloomhash"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/common"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/query"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/table"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// Random samples are drawn from the byte range [SampleMinByte, SampleMaxByte].
const (
	SampleMinByte = 40
	SampleMaxByte = 122
)

var errEntryMissing = errors.New("wordlist entry tests negative")

// Report holds the outcome of the most recent checks.
type Report struct {
	MetadataPath string
	Method       string
	Size         uint64

	OriginalChecked uint64
	OriginalOK      bool
	FailedEntry     string

	Samples         int
	Positives       int
	PositiveRate    float64
	PositiveRateErr float64
	FalsePositiveOK bool

	FillRatio float64
	Valid     bool
	Duration  time.Duration
}

// TableValidator checks a built table for corruption: every wordlist entry
// must test positive, and random strings must mostly test negative.
type TableValidator struct {
	metadataPath     string
	query            *query.TableQuery
	queryOpts        []query.Option
	rng              *rand.Rand
	sampleCount      int
	sampleLength     int
	maxPositiveRatio float64
	logger           zerolog.Logger
	report           Report
}

// Option configures a TableValidator.
type Option func(*TableValidator)

func WithLogger(logger zerolog.Logger) Option {
	return func(v *TableValidator) {
		v.logger = logger
	}
}

// WithSeed makes the random samples reproducible.
func WithSeed(seed uint64) Option {
	return func(v *TableValidator) {
		v.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithSampleCount sets how many random strings CheckTable samples.
func WithSampleCount(n int) Option {
	return func(v *TableValidator) {
		if n > 0 {
			v.sampleCount = n
		}
	}
}

// WithSampleLength sets the length of each random sample string.
func WithSampleLength(n int) Option {
	return func(v *TableValidator) {
		if n > 0 {
			v.sampleLength = n
		}
	}
}

// WithMaxPositiveRatio sets the share of positive samples above which the
// table is rejected.
func WithMaxPositiveRatio(ratio float64) Option {
	return func(v *TableValidator) {
		if ratio > 0 && ratio <= 1 {
			v.maxPositiveRatio = ratio
		}
	}
}

// WithQueryOptions passes options through to query.Open.
func WithQueryOptions(opts ...query.Option) Option {
	return func(v *TableValidator) {
		v.queryOpts = append(v.queryOpts, opts...)
	}
}

// New opens the table described by the metadata at metadataPath.
func New(metadataPath string, opts ...Option) (*TableValidator, error) {
	v := &TableValidator{
		metadataPath:     metadataPath,
		sampleCount:      internal.DefaultSampleCount,
		sampleLength:     internal.DefaultSampleLength,
		maxPositiveRatio: internal.DefaultMaxPositiveRatio,
		logger:           internal.GetLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.rng == nil {
		v.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	qopts := append([]query.Option{query.WithLogger(v.logger)}, v.queryOpts...)
	q, err := query.Open(metadataPath, qopts...)
	if err != nil {
		return nil, err
	}
	v.query = q

	meta := q.Metadata()
	v.report = Report{MetadataPath: metadataPath, Method: meta.MethodName, Size: meta.Size}
	return v, nil
}

// Report returns the statistics gathered so far.
func (v *TableValidator) Report() Report { return v.report }

// CheckTable runs CheckOriginalEntries and then CheckFalsePositiveRate with
// the configured sample count, stopping at the first failing check.
func (v *TableValidator) CheckTable() (bool, error) {
	start := time.Now()
	defer func() { v.report.Duration = time.Since(start) }()

	v.report.Valid = false
	ok, err := v.CheckOriginalEntries()
	if err != nil || !ok {
		return false, err
	}
	ok, err = v.CheckFalsePositiveRate(v.sampleCount)
	if err != nil || !ok {
		return false, err
	}

	if ratio, err := v.query.FillRatio(); err == nil {
		v.report.FillRatio = ratio
	}
	v.report.Valid = true

	v.logger.Info().
		Str("metadata", v.metadataPath).
		Str("method", v.report.Method).
		Float64("positive_rate", v.report.PositiveRate).
		Float64("fill_ratio", v.report.FillRatio).
		Msg("Table is valid")
	return true, nil
}

// CheckOriginalEntries re-reads the wordlist the table was built from and
// returns false at the first entry that tests negative. A table file too
// short for its size also fails the check. Only an unreadable wordlist is
// reported as an error.
func (v *TableValidator) CheckOriginalEntries() (bool, error) {
	wordlist := v.query.Metadata().WordlistPath

	var failed string
	checked, err := table.EachLine(wordlist, func(_ uint64, line []byte) error {
		ok, err := v.query.TestValue(string(line))
		if errors.Is(err, common.ErrTableTruncated) {
			failed = string(line)
			return err
		}
		if err != nil {
			return err
		}
		if !ok {
			failed = string(line)
			return errEntryMissing
		}
		return nil
	})
	v.report.OriginalChecked = checked

	switch {
	case errors.Is(err, errEntryMissing), errors.Is(err, common.ErrTableTruncated):
		v.report.OriginalOK = false
		v.report.FailedEntry = failed
		v.logger.Warn().
			Err(err).
			Str("metadata", v.metadataPath).
			Str("method", v.report.Method).
			Str("entry", failed).
			Uint64("line", checked).
			Msg("Wordlist entry does not map to a set bit")
		return false, nil
	case err != nil:
		return false, fmt.Errorf("check wordlist entries: %w", err)
	}

	v.report.OriginalOK = true
	v.report.FailedEntry = ""
	return true, nil
}

// CheckFalsePositiveRate tests sampleCount random strings and returns false
// when more than the configured share (half by default) test positive. The
// table is sized for about a third, so a higher rate means it is saturated
// or built with a different size. This is a smoke test, not a measurement.
func (v *TableValidator) CheckFalsePositiveRate(sampleCount int) (bool, error) {
	if sampleCount <= 0 {
		sampleCount = v.sampleCount
	}

	outcomes := make([]float64, sampleCount)
	buf := make([]byte, v.sampleLength)
	positives := 0
	for i := range outcomes {
		v.randomSample(buf)
		ok, err := v.query.TestValue(string(buf))
		if errors.Is(err, common.ErrTableTruncated) {
			v.report.FalsePositiveOK = false
			v.logger.Warn().Err(err).Str("metadata", v.metadataPath).Msg("Table truncated")
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("check false positive rate: %w", err)
		}
		if ok {
			positives++
			outcomes[i] = 1
		}
	}

	mean, std := stat.MeanStdDev(outcomes, nil)
	v.report.Samples = sampleCount
	v.report.Positives = positives
	v.report.PositiveRate = mean
	v.report.PositiveRateErr = stat.StdErr(std, float64(sampleCount))
	v.report.FalsePositiveOK = float64(positives) <= float64(sampleCount)*v.maxPositiveRatio

	ev := v.logger.Debug()
	if !v.report.FalsePositiveOK {
		ev = v.logger.Warn()
	}
	ev.Str("metadata", v.metadataPath).
		Str("method", v.report.Method).
		Int("samples", sampleCount).
		Int("positives", positives).
		Float64("rate", mean).
		Float64("stderr", v.report.PositiveRateErr).
		Msg("Sampled false positive rate")

	return v.report.FalsePositiveOK, nil
}

func (v *TableValidator) randomSample(buf []byte) {
	for i := range buf {
		buf[i] = byte(SampleMinByte + v.rng.IntN(SampleMaxByte-SampleMinByte+1))
	}
}

// Close releases the underlying query.
func (v *TableValidator) Close() error {
	return v.query.Close()
}
