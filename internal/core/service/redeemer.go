package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yndnr/memgate-go/internal/core/domain"
	"github.com/yndnr/memgate-go/internal/telemetry/logger"
)

// Redemption outcomes, also used as metric labels.
const (
	RedeemSuccess           = "success"
	RedeemWrongContext      = "wrong_context"
	RedeemMissingToken      = "missing_token"
	RedeemInvalidToken      = "invalid_token"
	RedeemAlreadyRedeemed   = "already_redeemed"
	RedeemPrivilegeNotFound = "privilege_not_found"
	RedeemGrantFailed       = "grant_failed"
	RedeemStoreError        = "store_error"
)

// Default reply lifetimes.
const (
	DefaultUsageTTL   = 10 * time.Second
	DefaultErrorTTL   = 15 * time.Second
	DefaultWelcomeTTL = 20 * time.Second
)

// settleTimeout bounds the work that must finish after the request
// context is gone: the message delete and the record commit after a grant.
const settleTimeout = 10 * time.Second

// RedeemerConfig configures a Redeemer.
type RedeemerConfig struct {
	// ChannelID is the only channel where redemption is accepted.
	ChannelID string

	// Command is the user-facing command shown in usage hints, e.g. "!verify".
	Command string

	// CommunityName is used in the welcome reply.
	CommunityName string

	UsageTTL   time.Duration
	ErrorTTL   time.Duration
	WelcomeTTL time.Duration

	Logger  logger.Logger
	Metrics Metrics
}

// Redeemer runs the redemption protocol. Handle is safe for concurrent use;
// the store's MarkVerified is the only check-and-set.
type Redeemer struct {
	repo RedemptionRepository
	chat ChatPlatform
	cfg  RedeemerConfig
}

// NewRedeemer creates a new Redeemer.
func NewRedeemer(repo RedemptionRepository, chat ChatPlatform, cfg RedeemerConfig) *Redeemer {
	if cfg.Command == "" {
		cfg.Command = "!verify"
	}
	if cfg.UsageTTL == 0 {
		cfg.UsageTTL = DefaultUsageTTL
	}
	if cfg.ErrorTTL == 0 {
		cfg.ErrorTTL = DefaultErrorTTL
	}
	if cfg.WelcomeTTL == 0 {
		cfg.WelcomeTTL = DefaultWelcomeTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	return &Redeemer{repo: repo, chat: chat, cfg: cfg}
}

// Handle processes one redemption request. It returns nil on success and
// otherwise the domain error describing the outcome. Whatever the
// outcome, the request message is deleted before Handle returns.
func (r *Redeemer) Handle(ctx context.Context, req RedemptionRequest) error {
	start := time.Now()
	ctx = logger.WithLogger(logger.WithRequestID(ctx, uuid.NewString()), r.cfg.Logger)
	log := logger.L(ctx).With(
		"principal", req.PrincipalID,
		"channel", req.ChannelID,
	)

	defer r.scrub(ctx, log, req)

	err := r.redeem(ctx, log, req)
	outcome := outcomeOf(err)
	r.cfg.Metrics.RedemptionOutcome(outcome, time.Since(start))
	log.Debug("redemption handled", "outcome", outcome)
	return err
}

func (r *Redeemer) redeem(ctx context.Context, log logger.Logger, req RedemptionRequest) error {
	if req.ChannelID != r.cfg.ChannelID {
		msg := fmt.Sprintf("Hi! Please use the %s command in the designated verification channel.", r.cfg.Command)
		if err := r.chat.Notify(ctx, req.PrincipalID, msg); err != nil {
			r.capabilityFailed("notify", err)
		}
		log.Info("redemption outside verification channel")
		return domain.ErrWrongContext
	}

	mention := r.chat.Mention(req.PrincipalID)
	token := strings.TrimSpace(req.Token)
	if token == "" {
		r.reply(ctx, log, fmt.Sprintf("Please provide your verification token, %s. Usage: %s YOUR_TOKEN", mention, r.cfg.Command), r.cfg.UsageTTL)
		return domain.ErrMissingToken
	}
	log = log.With("token", logger.RedactToken(token))

	m, err := r.repo.FindByToken(ctx, token)
	if errors.Is(err, domain.ErrMemberNotFound) {
		log.Info("unknown token")
		r.reply(ctx, log, fmt.Sprintf("Sorry %s, that token is invalid. Please check your email again or contact an admin.", mention), r.cfg.ErrorTTL)
		return domain.ErrInvalidToken
	}
	if err != nil {
		log.Error("token lookup failed", "error", err)
		r.reply(ctx, log, "A database error occurred. Please contact an admin.", r.cfg.UsageTTL)
		return domain.ErrStorage.WithCause(err)
	}
	log = log.With("member_id", m.ID)

	if m.Verified {
		log.Info("token already redeemed")
		r.replyAlreadyUsed(ctx, log, mention)
		return domain.ErrAlreadyRedeemed
	}

	priv, err := r.chat.ResolvePrivilege(ctx, m.PrivilegeID)
	if err != nil {
		r.capabilityFailed("resolve_privilege", err)
		r.replyInternal(ctx, log)
		if KindOf(err) == KindNotFound {
			log.Error("privilege not found on platform", "privilege_id", m.PrivilegeID)
			return domain.ErrPrivilegeNotFound.WithDetails(m.PrivilegeID).WithCause(err)
		}
		log.Error("privilege lookup failed", "privilege_id", m.PrivilegeID, "error", err)
		return mapCapabilityError(err)
	}

	if err := r.chat.GrantPrivilege(ctx, req.PrincipalID, priv.ID); err != nil {
		r.capabilityFailed("grant_privilege", err)
		log.Error("privilege grant failed", "privilege_id", priv.ID, "error", err)
		r.replyInternal(ctx, log)
		return mapCapabilityError(err)
	}

	// Granted before marking; a concurrent winner may already have consumed
	// the token, in which case this principal keeps the role but the record
	// stays bound to the winner. Once granted the commit must not be lost
	// to an expired request context.
	commitCtx, cancel := settle(ctx)
	ok, err := r.repo.MarkVerified(commitCtx, token, req.PrincipalID)
	cancel()
	if err != nil {
		log.Error("privilege granted but record not marked", "error", err)
		r.reply(ctx, log, "A database error occurred. Please contact an admin.", r.cfg.UsageTTL)
		return domain.ErrStorage.WithCause(err)
	}
	if !ok {
		log.Info("lost redemption race")
		r.replyAlreadyUsed(ctx, log, mention)
		return domain.ErrAlreadyRedeemed
	}

	log.Info("member verified", "email", m.Email, "privilege", priv.Name)
	community := "the community"
	if r.cfg.CommunityName != "" {
		community = "the " + r.cfg.CommunityName + " community"
	}
	r.reply(ctx, log, fmt.Sprintf("Welcome, %s! You have been verified and assigned the **%s** role. Welcome to %s!", mention, priv.Name, community), r.cfg.WelcomeTTL)

	if m.FirstName != "" {
		if err := r.chat.SetDisplayName(ctx, req.PrincipalID, m.FirstName); err != nil {
			r.capabilityFailed("set_display_name", err)
			log.Warn("display name not updated", "error", err)
		}
	}
	return nil
}

// scrub deletes the request message. It runs detached from ctx so an
// expired or cancelled request still has its token removed.
func (r *Redeemer) scrub(ctx context.Context, log logger.Logger, req RedemptionRequest) {
	if req.MessageID == "" {
		return
	}
	ctx, cancel := settle(ctx)
	defer cancel()
	if err := r.chat.DeleteMessage(ctx, req.ChannelID, req.MessageID); err != nil {
		r.capabilityFailed("delete_message", err)
		log.Warn("request message not deleted", "message_id", req.MessageID, "error", err)
	}
}

func settle(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

func (r *Redeemer) reply(ctx context.Context, log logger.Logger, text string, ttl time.Duration) {
	if err := r.chat.Reply(ctx, r.cfg.ChannelID, text, ttl); err != nil {
		r.capabilityFailed("reply", err)
		log.Warn("reply not posted", "error", err)
	}
}

func (r *Redeemer) replyAlreadyUsed(ctx context.Context, log logger.Logger, mention string) {
	r.reply(ctx, log, fmt.Sprintf("Hi %s, this token has already been used. If you believe this is an error, please contact an admin.", mention), r.cfg.ErrorTTL)
}

func (r *Redeemer) replyInternal(ctx context.Context, log logger.Logger) {
	r.reply(ctx, log, "An internal error occurred. Please contact an admin.", r.cfg.ErrorTTL)
}

func (r *Redeemer) capabilityFailed(op string, err error) {
	r.cfg.Metrics.CapabilityError(op, KindOf(err).String())
}

// outcomeOf maps a Handle result to its metric label.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return RedeemSuccess
	case errors.Is(err, domain.ErrWrongContext):
		return RedeemWrongContext
	case errors.Is(err, domain.ErrMissingToken):
		return RedeemMissingToken
	case errors.Is(err, domain.ErrInvalidToken):
		return RedeemInvalidToken
	case errors.Is(err, domain.ErrAlreadyRedeemed):
		return RedeemAlreadyRedeemed
	case errors.Is(err, domain.ErrPrivilegeNotFound):
		return RedeemPrivilegeNotFound
	case errors.Is(err, domain.ErrStorage):
		return RedeemStoreError
	default:
		return RedeemGrantFailed
	}
}
