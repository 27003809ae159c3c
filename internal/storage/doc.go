// Package storage selects and opens the member store.
//
// Backends:
//
//   - sqlite:   modernc.org/sqlite, the default single-file store
//   - postgres: sqlx over lib/pq, for shared deployments
//   - badger:   embedded KV store with optimistic transactions
//   - memory:   in-process maps (tests, dry runs)
//
// Every backend implements service.MemberRepository and passes the
// storagetest conformance suite.
package storage
