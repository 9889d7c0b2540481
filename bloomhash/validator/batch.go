package validator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	internal "github.com/ZanzyTHEbar/bloomhash/bloomhash"

	"github.com/sourcegraph/conc/pool"
)

// CheckTables validates several tables concurrently using a bounded worker
// pool. Every worker opens its own read-only handles, so tables must not be
// rebuilt while this runs. Reports are keyed by metadata path; a table that
// could not be opened or read is missing from the map and its error is
// joined into the returned error.
func CheckTables(ctx context.Context, metadataPaths []string, workers int, opts ...Option) (map[string]Report, error) {
	if workers <= 0 {
		workers = min(internal.DefaultWorkers, runtime.NumCPU())
	}
	start := time.Now()

	p := pool.NewWithResults[Report]().
		WithContext(ctx).
		WithMaxGoroutines(workers)

	for _, path := range metadataPaths {
		p.Go(func(ctx context.Context) (Report, error) {
			if err := ctx.Err(); err != nil {
				return Report{MetadataPath: path}, err
			}
			return checkOne(path, opts...)
		})
	}

	results, err := p.Wait()

	reports := make(map[string]Report, len(results))
	valid := 0
	for _, r := range results {
		reports[r.MetadataPath] = r
		if r.Valid {
			valid++
		}
	}

	settings := &TableValidator{logger: internal.GetLogger()}
	for _, opt := range opts {
		opt(settings)
	}
	settings.logger.Info().
		Int("tables", len(metadataPaths)).
		Int("valid", valid).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Batch validation completed")

	return reports, err
}

func checkOne(metadataPath string, opts ...Option) (report Report, err error) {
	v, err := New(metadataPath, opts...)
	if err != nil {
		return Report{MetadataPath: metadataPath}, fmt.Errorf("%s: %w", metadataPath, err)
	}
	defer func() {
		err = errors.Join(err, v.Close())
	}()

	if _, err := v.CheckTable(); err != nil {
		return v.Report(), fmt.Errorf("%s: %w", metadataPath, err)
	}
	return v.Report(), nil
}
