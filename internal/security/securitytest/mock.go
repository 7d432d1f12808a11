// Package securitytest provides test doubles for the security package.
package securitytest

import (
	"github.com/Inovico-app/inovy-sub002/internal/security"
)

// NewTestRedactor returns a Redactor without default patterns, so test
// strings that look like keys pass through unchanged.
func NewTestRedactor(literals ...string) *security.Redactor {
	r := &security.Redactor{}
	for _, l := range literals {
		r.AddLiteral(l)
	}
	return r
}

// NewTestCredentialStore returns a store holding the given name/value
// pairs. It panics on an odd number of arguments.
func NewTestCredentialStore(kvs ...string) *security.CredentialStore {
	if len(kvs)%2 != 0 {
		panic("securitytest: NewTestCredentialStore requires name/value pairs")
	}
	store := security.NewCredentialStore()
	for i := 0; i < len(kvs); i += 2 {
		store.Set(kvs[i], kvs[i+1])
	}
	return store
}
