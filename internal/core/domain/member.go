package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Member constraints.
const (
	MaxEmailLength = 254
	MaxNameLength  = 128
	MaxLabelLength = 128

	// MemberIDPrefix is the prefix for member IDs.
	MemberIDPrefix = "mbr-"
)

// Member is the persisted identity claim created by the issuer and
// consumed exactly once by the redeemer.
//
// Verified only moves false -> true. ExternalID and VerifiedAt are set
// in the same transition and never otherwise.
type Member struct {
	// ID is the opaque record identifier.
	// Format: mbr-{ulid_lowercase}, 30 characters total.
	ID string `json:"id" yaml:"id" db:"id"`

	// Email is the contact address, trimmed and lowercased. Unique.
	Email string `json:"email" yaml:"email" db:"email"`

	FirstName string `json:"first_name" yaml:"first_name" db:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name" db:"last_name"`

	// RoleLabel is the human-readable team or department name.
	RoleLabel string `json:"role_label" yaml:"role_label" db:"role_label"`

	// PrivilegeID references the role to grant on the chat platform.
	PrivilegeID string `json:"privilege_id" yaml:"privilege_id" db:"privilege_id"`

	// Token is the sole redemption credential. Unique.
	Token string `json:"-" yaml:"-" db:"token"`

	Verified bool `json:"verified" yaml:"verified" db:"verified"`

	// ExternalID is the chat principal that redeemed the token.
	ExternalID string `json:"external_id,omitempty" yaml:"external_id,omitempty" db:"external_id"`

	// CreatedAt is the record creation timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at" yaml:"created_at" db:"created_at"`

	// VerifiedAt is the redemption timestamp (Unix milliseconds), 0 while pending.
	VerifiedAt int64 `json:"verified_at,omitempty" yaml:"verified_at,omitempty" db:"verified_at"`
}

// NewMember creates an unverified Member for a normalized candidate.
func NewMember(c Candidate, privilegeID, token string) (*Member, error) {
	id, err := GenerateMemberID()
	if err != nil {
		return nil, err
	}
	return &Member{
		ID:          id,
		Email:       c.Email,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		RoleLabel:   c.Group,
		PrivilegeID: privilegeID,
		Token:       token,
		CreatedAt:   time.Now().UnixMilli(),
	}, nil
}

// GenerateMemberID generates a new member ID using ULID.
func GenerateMemberID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternal.WithCause(err)
	}
	return MemberIDPrefix + strings.ToLower(id.String()), nil
}

// NormalizeEmail returns the canonical form used as the dedup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DisplayName returns "First Last", or just the first name.
func (m *Member) DisplayName() string {
	if m.LastName == "" {
		return m.FirstName
	}
	return m.FirstName + " " + m.LastName
}

// ValidateExternalID rejects an empty redeeming identity, which would
// leave a verified record without an external id.
func ValidateExternalID(externalID string) error {
	if strings.TrimSpace(externalID) == "" {
		return ErrInvalidArgument.WithDetails("external id is required")
	}
	return nil
}

// MarkVerified applies the pending -> verified transition in memory.
// It reports false, leaving m untouched, if m was already verified.
// Backends holding records in memory use it inside their critical section.
func (m *Member) MarkVerified(externalID string, at time.Time) bool {
	if m.Verified {
		return false
	}
	m.Verified = true
	m.ExternalID = externalID
	m.VerifiedAt = at.UnixMilli()
	return true
}

// Clone returns a copy of m.
func (m *Member) Clone() *Member {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// Validate validates the member fields against constraints.
// Returns a DomainError with code MG-STOR-4001 if validation fails.
func (m *Member) Validate() error {
	var violations []string

	if m.ID == "" {
		violations = append(violations, "id is required")
	}
	if m.Email == "" {
		violations = append(violations, "email is required")
	}
	if len(m.Email) > MaxEmailLength {
		violations = append(violations, "email exceeds 254 characters")
	}
	if m.Token == "" {
		violations = append(violations, "token is required")
	}
	if m.PrivilegeID == "" {
		violations = append(violations, "privilege_id is required")
	}
	if len(m.FirstName) > MaxNameLength || len(m.LastName) > MaxNameLength {
		violations = append(violations, "name exceeds 128 characters")
	}
	if len(m.RoleLabel) > MaxLabelLength {
		violations = append(violations, "role_label exceeds 128 characters")
	}
	if m.Verified != (m.ExternalID != "") {
		violations = append(violations, "external_id must be set iff verified")
	}

	if len(violations) > 0 {
		return ErrMemberValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}
