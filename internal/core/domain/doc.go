// Package domain defines the core domain models for memgate.
//
// Domain models are plain values without IO dependencies. This package
// contains:
//
//   - Member: the persisted identity claim binding a contact address,
//     a single-use token and a privilege
//   - RosterRow / Candidate: raw and normalized roster input
//   - Token: invitation token generation
//   - Errors: the DomainError taxonomy shared by the issuer, the
//     redeemer and every storage backend
package domain
