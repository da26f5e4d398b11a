// Package credential defines the minimal interface the identification
// service and sync engine read AniDB login credentials from (spec
// §1's explicit scoping: "the credential store (both OS-keyring and
// encrypted-file fallback) — it exposes a store/retrieve/list/delete
// interface"). No concrete backing store lives here; it is the named
// external collaborator spec.md §9 confirms ("the specification
// treats the credential store as an external collaborator whose
// policy is out of scope"), grounded on
// _examples/original_source/anidb_client_core/src/security/fallback.rs's
// store/retrieve/list shape.
package credential

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Retrieve when no credential is stored for
// the given service/account pair.
var ErrNotFound = errors.New("credential: not found")

// Credential is one stored (account, secret) pair for a service.
type Credential struct {
	Service string
	Account string
	Secret  string
}

// Store is the store/retrieve/list/delete interface spec.md §6.3
// requires of the external credential collaborator.
type Store interface {
	Store(ctx context.Context, cred Credential) error
	Retrieve(ctx context.Context, service, account string) (Credential, error)
	ListAccounts(ctx context.Context, service string) ([]string, error)
	Delete(ctx context.Context, service, account string) error
}

// AniDBService is the service name identification.Service looks
// credentials up under when no explicit account is given.
const AniDBService = "anidb"
