// Package hashing holds the closed set of digest functions a table can be
// built with. Builders and queries resolve methods by the same stable names,
// since the metadata file stores only the name.
package hashing

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"unicode/utf16"

	"golang.org/x/crypto/md4"
	"golang.org/x/text/encoding/unicode"
)

// Digest computes the hexadecimal digest of a byte string.
type Digest interface {
	HexDigest(data []byte) string
}

// DigestFunc adapts a plain function to Digest.
type DigestFunc func(data []byte) string

func (f DigestFunc) HexDigest(data []byte) string { return f(data) }

// Method pairs a Digest with the name persisted in table metadata.
type Method struct {
	Name   string
	Digest Digest
}

// HexDigest is a shorthand for m.Digest.HexDigest.
func (m Method) HexDigest(data []byte) string { return m.Digest.HexDigest(data) }

type stdDigest struct {
	newHash func() hash.Hash
}

func (d stdDigest) HexDigest(data []byte) string {
	h := d.newHash()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FromHash builds a Digest from a hash constructor such as sha256.New.
func FromHash(newHash func() hash.Hash) Digest {
	return stdDigest{newHash: newHash}
}

var (
	MD5    Digest = FromHash(md5.New)
	SHA1   Digest = FromHash(sha1.New)
	SHA224 Digest = FromHash(sha256.New224)
	SHA256 Digest = FromHash(sha256.New)
	SHA384 Digest = FromHash(sha512.New384)
	SHA512 Digest = FromHash(sha512.New)
	NTLM   Digest = DigestFunc(ntlmHexDigest)
)

// ntlmHexDigest is MD4 over the UTF-16LE encoding of the password.
func ntlmHexDigest(data []byte) string {
	h := md4.New()
	h.Write(utf16le(data))
	return hex.EncodeToString(h.Sum(nil))
}

func utf16le(data []byte) []byte {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	out, err := enc.Bytes(data)
	if err == nil {
		return out
	}
	// invalid UTF-8: encode rune by rune, mapping bad bytes to U+FFFD
	units := utf16.Encode([]rune(string(data)))
	out = make([]byte, 0, 2*len(units))
	for _, u := range units {
		out = append(out, byte(u), byte(u>>8))
	}
	return out
}
