package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/bloomhash/bloomhash/table"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/validator"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openCatalog(t *testing.T, dsn string) *Catalog {
	t.Helper()
	c, err := Open(dsn, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCatalogIntegration(t *testing.T) {
	dir := t.TempDir()
	c := openCatalog(t, "file:"+filepath.Join(dir, "catalog.db"))

	meta := table.New("/data/rockyou.txt", "sha256", 28_688_782)

	t.Run("RecordBuild", func(t *testing.T) {
		rec, err := c.RecordBuild(meta, 0.39)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, rec.ID)
		assert.Equal(t, meta, rec.Metadata)
		assert.False(t, rec.BuiltAt.IsZero())
	})

	t.Run("GetBuild", func(t *testing.T) {
		rec, err := c.RecordBuild(meta, 0.4)
		require.NoError(t, err)

		got, err := c.GetBuild(rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, meta, got.Metadata)
		assert.InDelta(t, 0.4, got.FillRatio, 1e-9)
		assert.WithinDuration(t, rec.BuiltAt, got.BuiltAt, time.Microsecond)

		_, err = c.GetBuild(uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListBuilds", func(t *testing.T) {
		other := table.New("/data/other.txt", "ntlm", 10)
		latest, err := c.RecordBuild(other, 0.3)
		require.NoError(t, err)

		builds, err := c.ListBuilds()
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(builds), 3)
		assert.Equal(t, latest.ID, builds[0].ID)
		assert.Equal(t, uint64(10), builds[0].Metadata.Size)
	})

	t.Run("LatestBuildFor", func(t *testing.T) {
		rec, err := c.RecordBuild(meta, 0.41)
		require.NoError(t, err)

		got, err := c.LatestBuildFor(meta.TablePath)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)

		_, err = c.LatestBuildFor("/nowhere.dat")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Validations", func(t *testing.T) {
		build, err := c.RecordBuild(meta, 0.39)
		require.NoError(t, err)

		_, err = c.LatestValidation(build.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = c.RecordValidation(build.ID, validator.Report{
			OriginalOK: false,
			Valid:      false,
		})
		require.NoError(t, err)

		second, err := c.RecordValidation(build.ID, validator.Report{
			OriginalOK:      true,
			Samples:         10000,
			Positives:       3900,
			PositiveRate:    0.39,
			FalsePositiveOK: true,
			FillRatio:       0.39,
			Valid:           true,
		})
		require.NoError(t, err)

		got, err := c.LatestValidation(build.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)
		assert.Equal(t, build.ID, got.BuildID)
		assert.True(t, got.Valid)
		assert.True(t, got.OriginalOK)
		assert.Equal(t, 10000, got.Samples)
		assert.Equal(t, 3900, got.Positives)
		assert.InDelta(t, 0.39, got.PositiveRate, 1e-9)
	})

	t.Run("ValidationForUnknownBuild", func(t *testing.T) {
		_, err := c.RecordValidation(uuid.New(), validator.Report{Valid: true})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCatalogPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.db")

	c, err := Open(path, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	rec, err := c.RecordBuild(table.New("/w.txt", "md5", 4), 0.25)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	reopened := openCatalog(t, "file:"+path)
	got, err := reopened.GetBuild(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "md5", got.Metadata.MethodName)
}
