package hashing

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/bloomhash/bloomhash/common"

	radix "github.com/armon/go-radix"
)

// LegacyPrefix marks the method names written by older table builds
// ("openssl_sha256" and so on). They resolve to the same digests.
const LegacyPrefix = "openssl_"

// Registry is a fixed name -> Method table. It is populated at construction
// and never changes afterwards, so it is safe for concurrent lookups.
type Registry struct {
	tree *radix.Tree
}

// NewRegistry builds a registry holding exactly the given methods.
// Names are matched case-insensitively; a later duplicate replaces an
// earlier one.
func NewRegistry(methods ...Method) *Registry {
	r := &Registry{tree: radix.New()}
	for _, m := range methods {
		r.tree.Insert(normalize(m.Name), m)
	}
	return r
}

var defaultRegistry = newDefaultRegistry()

func newDefaultRegistry() *Registry {
	builtin := []Method{
		{Name: "md5", Digest: MD5},
		{Name: "sha1", Digest: SHA1},
		{Name: "sha224", Digest: SHA224},
		{Name: "sha256", Digest: SHA256},
		{Name: "sha384", Digest: SHA384},
		{Name: "sha512", Digest: SHA512},
		{Name: "ntlm", Digest: NTLM},
	}
	methods := make([]Method, 0, 2*len(builtin))
	methods = append(methods, builtin...)
	for _, m := range builtin {
		if m.Name == "ntlm" {
			continue
		}
		methods = append(methods, Method{Name: LegacyPrefix + m.Name, Digest: m.Digest})
	}
	return NewRegistry(methods...)
}

// Default returns the registry of built-in methods: md5, sha1, sha224,
// sha256, sha384, sha512, ntlm and the openssl_* aliases.
func Default() *Registry { return defaultRegistry }

// Lookup resolves name to its Method. The returned Method carries the
// name as registered.
func (r *Registry) Lookup(name string) (Method, error) {
	v, ok := r.tree.Get(normalize(name))
	if !ok {
		return Method{}, fmt.Errorf("%w: %q", common.ErrUnknownHashMethod, name)
	}
	return v.(Method), nil
}

// Lookup resolves name in the default registry.
func Lookup(name string) (Method, error) { return defaultRegistry.Lookup(name) }

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tree.Get(normalize(name))
	return ok
}

// Names lists registered names in lexical order. Legacy aliases are
// omitted unless withLegacy is set.
func (r *Registry) Names(withLegacy bool) []string {
	names := make([]string, 0, r.tree.Len())
	r.tree.Walk(func(s string, _ interface{}) bool {
		if withLegacy || !strings.HasPrefix(s, LegacyPrefix) {
			names = append(names, s)
		}
		return false
	})
	return names
}

// Len returns the number of registered names, aliases included.
func (r *Registry) Len() int { return r.tree.Len() }

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
