package main

import (
	"errors"
	"fmt"
	"math"
	"text/tabwriter"
	"time"

	"github.com/ZanzyTHEbar/bloomhash/bloomhash/bittable"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/builder"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/catalog"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/query"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/table"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/validator"
)

func runBuild(e *env, args []string) error {
	fs := e.flags("build", "<wordlist>")
	methods := fs.StringSliceP("method", "m", e.cfg.Bloomhash.Methods, "hash method to build a table for (repeatable)")
	progress := fs.Uint64("progress-every", e.cfg.Bloomhash.Build.ProgressEvery, "log progress every N entries, 0 disables")
	record := fs.Bool("catalog", e.cfg.Bloomhash.Catalog.Enabled, "record the build in the catalog")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}

	b, err := builder.New(fs.Arg(0), builder.WithLogger(e.logger), builder.WithProgressEvery(*progress))
	if err != nil {
		return err
	}
	for _, m := range *methods {
		if err := b.AddHashMethodByName(m); err != nil {
			return errors.Join(err, b.Close())
		}
	}
	if err := b.ProcessFile(); err != nil {
		return err
	}

	var cat *catalog.Catalog
	if *record {
		if cat, err = e.openCatalog(); err != nil {
			return err
		}
		defer cat.Close()
	}

	for _, meta := range b.Metadata() {
		ratio, err := fillRatio(meta)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%s\t%s\t%d bits\tfill %.4f\n", meta.Path(), meta.MethodName, meta.Size, ratio)

		if cat != nil {
			if _, err := cat.RecordBuild(meta, ratio); err != nil {
				return err
			}
		}
	}
	return nil
}

func fillRatio(meta table.Metadata) (float64, error) {
	tbl, err := bittable.Open(meta.TablePath, meta.Size)
	if err != nil {
		return 0, err
	}
	defer tbl.Close()
	return tbl.FillRatio()
}

func runCheck(e *env, args []string) error {
	vc := e.cfg.Bloomhash.Validation
	fs := e.flags("check", "<metadata>...")
	workers := fs.IntP("workers", "w", vc.Workers, "tables validated concurrently")
	samples := fs.Int("samples", vc.SampleCount, "random strings sampled per table")
	seed := fs.Uint64("seed", 0, "seed for random samples, 0 picks one")
	record := fs.Bool("catalog", e.cfg.Bloomhash.Catalog.Enabled, "record the results in the catalog")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	opts := []validator.Option{
		validator.WithLogger(e.logger),
		validator.WithSampleCount(*samples),
		validator.WithSampleLength(vc.SampleLength),
		validator.WithMaxPositiveRatio(vc.MaxPositiveRatio),
	}
	if *seed != 0 {
		opts = append(opts, validator.WithSeed(*seed))
	}

	reports, checkErr := validator.CheckTables(e.ctx, fs.Args(), *workers, opts...)

	invalid := 0
	for _, path := range fs.Args() {
		r, ok := reports[path]
		switch {
		case !ok:
			invalid++
			fmt.Fprintf(e.stdout, "%s\terror\n", path)
		case r.Valid:
			fmt.Fprintf(e.stdout, "%s\t%s table is valid\tpositive rate %.4f±%.4f\n",
				path, r.Method, r.PositiveRate, r.PositiveRateErr)
		case !r.OriginalOK:
			invalid++
			fmt.Fprintf(e.stdout, "%s\t%s table is corrupt\tentry %q tests negative\n", path, r.Method, r.FailedEntry)
		default:
			invalid++
			fmt.Fprintf(e.stdout, "%s\t%s table is corrupt\tpositive rate %.4f\n", path, r.Method, r.PositiveRate)
		}
	}

	if *record {
		if err := recordReports(e, fs.Args(), reports); err != nil {
			return errors.Join(checkErr, err)
		}
	}

	if checkErr != nil {
		return checkErr
	}
	if invalid > 0 {
		fmt.Fprintf(e.stderr, "%s of %d invalid\n", plural(invalid, "table"), fs.NArg())
		return errInvalid
	}
	return nil
}

// recordReports attaches each report to the latest catalog build of its
// table, recording the build first if the catalog has never seen it.
func recordReports(e *env, paths []string, reports map[string]validator.Report) error {
	cat, err := e.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	for _, path := range paths {
		r, ok := reports[path]
		if !ok {
			continue
		}
		meta, err := table.ReadMetadata(path)
		if err != nil {
			return err
		}
		build, err := cat.LatestBuildFor(meta.TablePath)
		if errors.Is(err, catalog.ErrNotFound) {
			build, err = cat.RecordBuild(meta, r.FillRatio)
		}
		if err != nil {
			return err
		}
		if _, err := cat.RecordValidation(build.ID, r); err != nil {
			return err
		}
	}
	return nil
}

func runLookup(e *env, args []string) error {
	fs := e.flags("lookup", "<metadata> <value>...")
	digest := fs.BoolP("digest", "d", false, "values are precomputed hex digests")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errUsage
	}

	q, err := query.Open(fs.Arg(0), query.WithLogger(e.logger))
	if err != nil {
		return err
	}
	defer q.Close()

	for _, v := range fs.Args()[1:] {
		var ok bool
		if *digest {
			ok, err = q.TestDigest(v)
		} else {
			ok, err = q.TestValue(v)
		}
		if err != nil {
			return fmt.Errorf("%q: %w", v, err)
		}
		verdict := "absent"
		if ok {
			verdict = "possibly present"
		}
		fmt.Fprintf(e.stdout, "%s\t%s\n", v, verdict)
	}
	return nil
}

func runStats(e *env, args []string) error {
	fs := e.flags("stats", "<metadata>")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}

	meta, err := table.ReadMetadata(fs.Arg(0))
	if err != nil {
		return err
	}
	tbl, err := bittable.Open(meta.TablePath, meta.Size)
	if err != nil {
		return err
	}
	defer tbl.Close()

	bm, err := tbl.Snapshot()
	if err != nil {
		return err
	}
	set := bm.GetCardinality()

	w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "wordlist\t%s\n", meta.WordlistPath)
	fmt.Fprintf(w, "table\t%s\n", meta.TablePath)
	fmt.Fprintf(w, "method\t%s\n", meta.MethodName)
	fmt.Fprintf(w, "size\t%d bits (%d bytes)\n", meta.Size, bittable.ByteLen(meta.Size))
	fmt.Fprintf(w, "set bits\t%d\n", set)
	fmt.Fprintf(w, "fill ratio\t%.4f\n", float64(set)/float64(meta.Size))
	if entries, err := table.CountLines(meta.WordlistPath); err == nil && entries > 0 {
		fmt.Fprintf(w, "entries\t%d\n", entries)
		fmt.Fprintf(w, "expected fill\t%.4f\n", 1-math.Exp(-float64(entries)/float64(meta.Size)))
	} else {
		e.logger.Debug().Err(err).Str("wordlist", meta.WordlistPath).Msg("Wordlist unavailable")
	}
	return w.Flush()
}

func runCatalog(e *env, args []string) error {
	fs := e.flags("catalog", "")
	limit := fs.IntP("limit", "n", 20, "show at most N builds, 0 for all")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return errUsage
	}

	cat, err := e.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	builds, err := cat.ListBuilds()
	if err != nil {
		return err
	}
	if *limit > 0 && len(builds) > *limit {
		builds = builds[:*limit]
	}

	w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMETHOD\tSIZE\tFILL\tBUILT\tLAST CHECK\tTABLE")
	for _, b := range builds {
		status := "-"
		v, err := cat.LatestValidation(b.ID)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
		case err != nil:
			return err
		case v.Valid:
			status = "valid " + v.CheckedAt.Local().Format(time.DateTime)
		default:
			status = "corrupt " + v.CheckedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%.4f\t%s\t%s\t%s\n",
			b.ID, b.Metadata.MethodName, b.Metadata.Size, b.FillRatio,
			b.BuiltAt.Local().Format(time.DateTime), status, b.Metadata.TablePath)
	}
	return w.Flush()
}
