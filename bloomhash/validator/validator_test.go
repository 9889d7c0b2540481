package validator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/bloomhash/bloomhash/builder"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/common"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/table"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Passw0rd-%d", i)
	}
	return out
}

func build(t *testing.T, entries []string, methods ...string) string {
	t.Helper()
	wordlist := filepath.Join(t.TempDir(), "wordlist.txt")
	require.NoError(t, os.WriteFile(wordlist, []byte(strings.Join(entries, "\n")), 0o644))

	b, err := builder.New(wordlist, builder.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	for _, m := range methods {
		require.NoError(t, b.AddHashMethodByName(m))
	}
	require.NoError(t, b.ProcessFile())
	return wordlist
}

func newValidator(t *testing.T, metadataPath string, opts ...Option) *TableValidator {
	t.Helper()
	v, err := New(metadataPath, append([]Option{WithLogger(zerolog.Nop()), WithSeed(42)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func overwrite(t *testing.T, path string, b byte) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{b}, int(info.Size())), 0o644))
}

func TestCheckTableValid(t *testing.T) {
	wordlist := build(t, words(3000), "sha256")
	v := newValidator(t, table.MetadataPath(wordlist, "sha256"))

	ok, err := v.CheckTable()
	require.NoError(t, err)
	assert.True(t, ok)

	r := v.Report()
	assert.True(t, r.Valid)
	assert.True(t, r.OriginalOK)
	assert.True(t, r.FalsePositiveOK)
	assert.Equal(t, uint64(3000), r.OriginalChecked)
	assert.Equal(t, 10000, r.Samples)
	assert.Equal(t, "sha256", r.Method)
	assert.Equal(t, uint64(6000), r.Size)
	assert.InDelta(t, r.FillRatio, r.PositiveRate, 0.05)
	assert.Less(t, r.PositiveRate, 0.5)
	assert.Greater(t, r.PositiveRateErr, 0.0)
	assert.Greater(t, r.Duration.Nanoseconds(), int64(0))
}

func TestCheckOriginalEntriesSmallList(t *testing.T) {
	wordlist := build(t, []string{"apple", "banana", "cherry"}, "sha256", "ntlm")
	for _, m := range []string{"sha256", "ntlm"} {
		v := newValidator(t, table.MetadataPath(wordlist, m))
		ok, err := v.CheckOriginalEntries()
		require.NoError(t, err)
		assert.True(t, ok, m)
		assert.Equal(t, uint64(3), v.Report().OriginalChecked)
	}
}

func TestCheckOriginalEntriesZeroFilled(t *testing.T) {
	wordlist := build(t, []string{"test", "password", "welkom"}, "md5")
	overwrite(t, table.TablePath(wordlist, "md5"), 0x00)

	v := newValidator(t, table.MetadataPath(wordlist, "md5"))
	ok, err := v.CheckOriginalEntries()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "test", v.Report().FailedEntry)
	assert.Equal(t, uint64(1), v.Report().OriginalChecked)

	ok, err = v.CheckTable()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, v.Report().Valid)
	assert.Zero(t, v.Report().Samples, "false positive check must not run")
}

func TestCheckOriginalEntriesTruncated(t *testing.T) {
	wordlist := build(t, words(500), "sha1")
	require.NoError(t, os.Truncate(table.TablePath(wordlist, "sha1"), 0))

	v := newValidator(t, table.MetadataPath(wordlist, "sha1"))
	ok, err := v.CheckOriginalEntries()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "Passw0rd-0", v.Report().FailedEntry)
}

func TestCheckFalsePositiveRateSaturated(t *testing.T) {
	wordlist := build(t, words(200), "sha384")
	overwrite(t, table.TablePath(wordlist, "sha384"), 0xff)

	v := newValidator(t, table.MetadataPath(wordlist, "sha384"))

	ok, err := v.CheckOriginalEntries()
	require.NoError(t, err)
	assert.True(t, ok, "a saturated table still has no false negatives")

	ok, err = v.CheckFalsePositiveRate(1000)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1000, v.Report().Positives)
	assert.Equal(t, 1.0, v.Report().PositiveRate)

	ok, err = v.CheckTable()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckFalsePositiveRateThreshold(t *testing.T) {
	wordlist := build(t, words(2000), "sha512")
	path := table.MetadataPath(wordlist, "sha512")

	ok, err := newValidator(t, path).CheckFalsePositiveRate(2000)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = newValidator(t, path, WithMaxPositiveRatio(0.05)).CheckFalsePositiveRate(2000)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSeedIsReproducible(t *testing.T) {
	wordlist := build(t, words(1000), "md5")
	path := table.MetadataPath(wordlist, "md5")

	a := newValidator(t, path, WithSeed(7))
	b := newValidator(t, path, WithSeed(7))
	_, err := a.CheckFalsePositiveRate(500)
	require.NoError(t, err)
	_, err = b.CheckFalsePositiveRate(500)
	require.NoError(t, err)
	assert.Equal(t, a.Report().Positives, b.Report().Positives)
}

func TestRandomSampleRange(t *testing.T) {
	wordlist := build(t, []string{"x"}, "md5")
	v := newValidator(t, table.MetadataPath(wordlist, "md5"), WithSampleLength(64))

	buf := make([]byte, v.sampleLength)
	require.Len(t, buf, 64)
	for i := 0; i < 200; i++ {
		v.randomSample(buf)
		for _, c := range buf {
			require.GreaterOrEqual(t, c, byte(SampleMinByte))
			require.LessOrEqual(t, c, byte(SampleMaxByte))
		}
	}
}

func TestMissingWordlist(t *testing.T) {
	wordlist := build(t, []string{"a", "b"}, "md5")
	require.NoError(t, os.Remove(wordlist))

	v := newValidator(t, table.MetadataPath(wordlist, "md5"))
	ok, err := v.CheckOriginalEntries()
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, common.IsIOError(err))
}

func TestNewErrors(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "none.size"), WithLogger(zerolog.Nop()))
	assert.True(t, common.IsIOError(err))
}

func TestCheckTables(t *testing.T) {
	wordlist := build(t, words(1500), "md5", "sha1", "sha256", "ntlm")
	overwrite(t, table.TablePath(wordlist, "sha1"), 0x00)

	paths := []string{
		table.MetadataPath(wordlist, "md5"),
		table.MetadataPath(wordlist, "sha1"),
		table.MetadataPath(wordlist, "sha256"),
		table.MetadataPath(wordlist, "ntlm"),
	}
	missing := filepath.Join(t.TempDir(), "missing.size")

	reports, err := CheckTables(context.Background(), append(paths, missing), 2,
		WithLogger(zerolog.Nop()), WithSeed(1))
	require.Error(t, err)
	assert.True(t, common.IsIOError(err))
	assert.Contains(t, err.Error(), missing)

	require.Len(t, reports, 4)
	assert.True(t, reports[paths[0]].Valid)
	assert.False(t, reports[paths[1]].Valid)
	assert.False(t, reports[paths[1]].OriginalOK)
	assert.True(t, reports[paths[2]].Valid)
	assert.True(t, reports[paths[3]].Valid)
	assert.NotContains(t, reports, missing)
}

func TestCheckTablesCancelled(t *testing.T) {
	wordlist := build(t, words(10), "md5")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reports, err := CheckTables(ctx, []string{table.MetadataPath(wordlist, "md5")}, 1, WithLogger(zerolog.Nop()))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reports)
}

func TestWithSampleCount(t *testing.T) {
	wordlist := build(t, words(300), "sha224")
	v := newValidator(t, table.MetadataPath(wordlist, "sha224"), WithSampleCount(250))

	ok, err := v.CheckTable()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 250, v.Report().Samples)
}
