// Package service provides the memgate domain services.
//
// Services contain the business logic and depend only on the interfaces
// declared here, so storage backends and platform adapters can be
// swapped and faked in tests.
//
// This package contains:
//
//   - Issuer: roster -> token -> notification -> record, per group
//   - Redeemer: the "redeem token, grant role, mark consumed" protocol
//   - Pacer: the dispatch pacing policy (fixed delay or token bucket)
//   - Template: literal placeholder substitution for notifications
//
// The Issuer and the Redeemer never call each other; they meet only at
// the MemberRepository.
package service
