package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yndnr/memgate-go/internal/core/domain"
)

// ============================================================================
// Issuer capabilities
// ============================================================================

// Group is one roster group: a team whose members receive the same privilege.
type Group struct {
	Name         string
	RosterFile   string
	TemplateFile string
	PrivilegeID  string
}

// RosterSource reads raw candidate rows for a group.
type RosterSource interface {
	Rows(ctx context.Context, g Group) ([]domain.RosterRow, error)
}

// TemplateSource loads the notification body template for a group.
type TemplateSource interface {
	Template(ctx context.Context, g Group) (*Template, error)
}

// Message is one rendered notification.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Transport dispatches notifications. A nil error means the message was
// accepted for delivery. Failures should be returned as *CapabilityError
// wrapping domain.ErrTransportFailure.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// ============================================================================
// Redeemer capabilities
// ============================================================================

// RedemptionRequest is one "!verify <token>" message.
type RedemptionRequest struct {
	ChannelID   string
	MessageID   string
	PrincipalID string
	Token       string
}

// Privilege is a resolved chat-platform role.
type Privilege struct {
	ID   string
	Name string
}

// ChatPlatform is the subset of the chat platform the redeemer drives.
// Failures should be returned as *CapabilityError.
type ChatPlatform interface {
	// DeleteMessage removes a message from a channel.
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	// Notify sends a direct message to a principal.
	Notify(ctx context.Context, principalID, text string) error

	// Reply posts text to a channel and removes it again after ttl.
	// A zero ttl keeps the reply.
	Reply(ctx context.Context, channelID, text string, ttl time.Duration) error

	// ResolvePrivilege looks up a role by id.
	ResolvePrivilege(ctx context.Context, privilegeID string) (Privilege, error)

	// GrantPrivilege adds a role to a principal. Granting a role the
	// principal already holds succeeds.
	GrantPrivilege(ctx context.Context, principalID, privilegeID string) error

	// SetDisplayName changes the principal's display name.
	SetDisplayName(ctx context.Context, principalID, name string) error

	// Mention returns the platform syntax that mentions a principal.
	Mention(principalID string) string
}

// ============================================================================
// Capability errors
// ============================================================================

// Kind classifies a capability failure.
type Kind int

const (
	// KindUnavailable covers transport faults, timeouts and anything unclassified.
	KindUnavailable Kind = iota
	// KindPermissionDenied means the platform refused the operation.
	KindPermissionDenied
	// KindNotFound means the target entity does not exist.
	KindNotFound
)

// String returns the metric label for k.
func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	default:
		return "unavailable"
	}
}

// CapabilityError is returned by adapters when a platform call fails.
type CapabilityError struct {
	Op   string // e.g. "grant_privilege"
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// KindOf returns the capability kind of err. Errors that are not
// CapabilityErrors are KindUnavailable.
func KindOf(err error) Kind {
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnavailable
}

// mapCapabilityError turns a grant failure into the domain error reported upstream.
func mapCapabilityError(err error) *domain.DomainError {
	if KindOf(err) == KindPermissionDenied {
		return domain.ErrCapabilityPermissionDenied.WithCause(err)
	}
	return domain.ErrInternal.WithCause(err)
}

// ============================================================================
// Metrics
// ============================================================================

// Metrics receives service outcomes. *metric.Registry implements it.
type Metrics interface {
	InviteOutcome(group, outcome string)
	RedemptionOutcome(outcome string, elapsed time.Duration)
	CapabilityError(op, kind string)
}

type nopMetrics struct{}

func (nopMetrics) InviteOutcome(string, string)            {}
func (nopMetrics) RedemptionOutcome(string, time.Duration) {}
func (nopMetrics) CapabilityError(string, string)          {}
