package query

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/bloomhash/bloomhash/builder"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/common"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/hashing"
	"github.com/ZanzyTHEbar/bloomhash/bloomhash/table"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, words []string, methods ...string) string {
	t.Helper()
	wordlist := filepath.Join(t.TempDir(), "wordlist.txt")
	require.NoError(t, os.WriteFile(wordlist, []byte(strings.Join(words, "\n")+"\n"), 0o644))

	b, err := builder.New(wordlist, builder.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	for _, m := range methods {
		require.NoError(t, b.AddHashMethodByName(m))
	}
	require.NoError(t, b.ProcessFile())
	return wordlist
}

func open(t *testing.T, metadataPath string, opts ...Option) *TableQuery {
	t.Helper()
	q, err := Open(metadataPath, append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestRoundTrip(t *testing.T) {
	words := []string{"apple", "banana", "cherry"}
	wordlist := build(t, words, "sha256")

	q := open(t, table.MetadataPath(wordlist, "sha256"))
	assert.Equal(t, uint64(6), q.Metadata().Size)
	assert.Equal(t, "sha256", q.Method().Name)

	for _, w := range words {
		ok, err := q.TestValue(w)
		require.NoError(t, err)
		assert.True(t, ok, w)
	}
}

func TestNoFalseNegativesEveryMethod(t *testing.T) {
	var words []string
	for i := 0; i < 500; i++ {
		words = append(words, fmt.Sprintf("pass%03d!", i))
	}
	methods := hashing.Default().Names(false)
	wordlist := build(t, words, methods...)

	for _, name := range methods {
		q := open(t, table.MetadataPath(wordlist, name))
		for _, w := range words {
			ok, err := q.TestValue(w)
			require.NoError(t, err)
			require.True(t, ok, "%s: %s", name, w)
		}
	}
}

func TestTestDigestMatchesTestValue(t *testing.T) {
	wordlist := build(t, []string{"test", "password", "welkom"}, "ntlm")
	q := open(t, table.MetadataPath(wordlist, "ntlm"))

	ok, err := q.TestDigest("8846f7eaee8fb117ad06bdd830b7586c")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.TestDigest("8846F7EAEE8FB117AD06BDD830B7586C")
	require.NoError(t, err)
	assert.True(t, ok)

	for _, v := range []string{"Foobartest1234", "Nonexistingpasswordinlist", "Alsonotinwordlist"} {
		byValue, err := q.TestValue(v)
		require.NoError(t, err)
		byDigest, err := q.TestDigest(hashing.NTLM.HexDigest([]byte(v)))
		require.NoError(t, err)
		assert.Equal(t, byValue, byDigest, v)
	}
}

func TestInvalidDigest(t *testing.T) {
	wordlist := build(t, []string{"a"}, "md5")
	q := open(t, table.MetadataPath(wordlist, "md5"))

	_, err := q.TestDigest("not a digest")
	assert.ErrorIs(t, err, common.ErrInvalidDigest)
	_, err = q.TestDigest("")
	assert.ErrorIs(t, err, common.ErrInvalidDigest)
}

func TestNegativeSampling(t *testing.T) {
	var words []string
	for i := 0; i < 2000; i++ {
		words = append(words, fmt.Sprintf("entry-%d", i))
	}
	wordlist := build(t, words, "sha1")
	q := open(t, table.MetadataPath(wordlist, "sha1"))

	rng := rand.New(rand.NewPCG(7, 11))
	const trials = 2000
	negatives := 0
	for i := 0; i < trials; i++ {
		token := fmt.Sprintf("absent-%016x%016x", rng.Uint64(), rng.Uint64())
		ok, err := q.TestValue(token)
		require.NoError(t, err)
		if !ok {
			negatives++
		}
	}
	// about 61% of the bits stay clear at 2 bits per entry
	assert.Greater(t, negatives, trials*2/5)
}

func TestOpenUnknownMethod(t *testing.T) {
	wordlist := build(t, []string{"a", "b"}, "md5")
	meta, err := table.ReadMetadata(table.MetadataPath(wordlist, "md5"))
	require.NoError(t, err)

	meta.MethodName = "whirlpool"
	path := filepath.Join(t.TempDir(), "whirlpool.size")
	require.NoError(t, meta.Write(path))

	_, err = Open(path, WithLogger(zerolog.Nop()))
	assert.ErrorIs(t, err, common.ErrUnknownHashMethod)
}

func TestOpenLegacyMethodName(t *testing.T) {
	wordlist := build(t, []string{"welkom"}, "sha512")
	meta, err := table.ReadMetadata(table.MetadataPath(wordlist, "sha512"))
	require.NoError(t, err)

	meta.MethodName = hashing.LegacyPrefix + "sha512"
	path := filepath.Join(t.TempDir(), "legacy.size")
	require.NoError(t, meta.Write(path))

	q := open(t, path)
	ok, err := q.TestValue("welkom")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenWithCustomRegistry(t *testing.T) {
	wordlist := build(t, []string{"a", "b"}, "md5")

	_, err := Open(table.MetadataPath(wordlist, "md5"),
		WithLogger(zerolog.Nop()),
		WithRegistry(hashing.NewRegistry(hashing.Method{Name: "sha1", Digest: hashing.SHA1})))
	assert.ErrorIs(t, err, common.ErrUnknownHashMethod)

	q := open(t, table.MetadataPath(wordlist, "md5"),
		WithRegistry(hashing.NewRegistry(hashing.Method{Name: "md5", Digest: hashing.MD5})))
	ok, err := q.TestValue("a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenMissingFiles(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.size"), WithLogger(zerolog.Nop()))
	assert.True(t, common.IsIOError(err))

	wordlist := build(t, []string{"a"}, "md5")
	require.NoError(t, os.Remove(table.TablePath(wordlist, "md5")))
	_, err = Open(table.MetadataPath(wordlist, "md5"), WithLogger(zerolog.Nop()))
	assert.True(t, common.IsIOError(err))
}

func TestOpenMalformedMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.size")
	require.NoError(t, os.WriteFile(path, []byte("lots\n"), 0o644))
	_, err := Open(path, WithLogger(zerolog.Nop()))
	assert.ErrorIs(t, err, common.ErrMalformedMetadata)
}

func TestClosedQuery(t *testing.T) {
	wordlist := build(t, []string{"a"}, "md5")
	q, err := Open(table.MetadataPath(wordlist, "md5"), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	require.NoError(t, q.Close())

	_, err = q.TestValue("a")
	assert.ErrorIs(t, err, common.ErrTableClosed)
}
