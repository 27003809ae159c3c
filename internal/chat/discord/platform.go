package discord

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/yndnr/memgate-go/internal/core/service"
	"github.com/yndnr/memgate-go/internal/telemetry/logger"
)

// restAPI is the part of *discordgo.Session the platform calls.
type restAPI interface {
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberNickname(guildID, userID, nickname string, options ...discordgo.RequestOption) error
}

// Platform implements service.ChatPlatform for one guild.
type Platform struct {
	api     restAPI
	guildID string
	log     logger.Logger

	mu      sync.Mutex
	pending map[string]pendingReply // message id -> scheduled delete
}

type pendingReply struct {
	channelID string
	timer     *time.Timer
}

// NewPlatform returns a Platform acting in guildID.
func NewPlatform(api restAPI, guildID string, log logger.Logger) *Platform {
	if log == nil {
		log = logger.Default()
	}
	return &Platform{
		api:     api,
		guildID: guildID,
		log:     log,
		pending: make(map[string]pendingReply),
	}
}

// DeleteMessage removes a message.
func (p *Platform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := p.api.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	return classify("delete_message", err)
}

// Notify sends a direct message.
func (p *Platform) Notify(ctx context.Context, principalID, text string) error {
	ch, err := p.api.UserChannelCreate(principalID, discordgo.WithContext(ctx))
	if err != nil {
		return classify("notify", err)
	}
	_, err = p.api.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx))
	return classify("notify", err)
}

// Reply posts text to channelID and deletes it after ttl.
func (p *Platform) Reply(ctx context.Context, channelID, text string, ttl time.Duration) error {
	msg, err := p.api.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return classify("reply", err)
	}
	if ttl <= 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[msg.ID] = pendingReply{
		channelID: channelID,
		timer: time.AfterFunc(ttl, func() {
			p.expire(channelID, msg.ID)
		}),
	}
	return nil
}

func (p *Platform) expire(channelID, messageID string) {
	p.mu.Lock()
	delete(p.pending, messageID)
	p.mu.Unlock()

	if err := p.api.ChannelMessageDelete(channelID, messageID); err != nil {
		p.log.Debug("delete expired reply failed", "message_id", messageID, "error", err)
	}
}

// Pending returns the number of replies waiting for deletion.
func (p *Platform) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Flush deletes every pending reply now. Called on shutdown so replies do
// not outlive the process.
func (p *Platform) Flush(ctx context.Context) error {
	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[string]pendingReply)
	p.mu.Unlock()

	var errs []error
	for id, r := range pending {
		if !r.timer.Stop() {
			continue // already firing
		}
		if err := p.api.ChannelMessageDelete(r.channelID, id, discordgo.WithContext(ctx)); err != nil {
			errs = append(errs, classify("delete_message", err))
		}
	}
	return errors.Join(errs...)
}

// ResolvePrivilege looks the role up in the guild.
func (p *Platform) ResolvePrivilege(ctx context.Context, privilegeID string) (service.Privilege, error) {
	roles, err := p.api.GuildRoles(p.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return service.Privilege{}, classify("resolve_privilege", err)
	}
	for _, r := range roles {
		if r.ID == privilegeID {
			return service.Privilege{ID: r.ID, Name: r.Name}, nil
		}
	}
	return service.Privilege{}, &service.CapabilityError{Op: "resolve_privilege", Kind: service.KindNotFound}
}

// GrantPrivilege adds the role to the member.
func (p *Platform) GrantPrivilege(ctx context.Context, principalID, privilegeID string) error {
	err := p.api.GuildMemberRoleAdd(p.guildID, principalID, privilegeID, discordgo.WithContext(ctx))
	return classify("grant_privilege", err)
}

// SetDisplayName sets the member's guild nickname.
func (p *Platform) SetDisplayName(ctx context.Context, principalID, name string) error {
	err := p.api.GuildMemberNickname(p.guildID, principalID, name, discordgo.WithContext(ctx))
	return classify("set_display_name", err)
}

// Mention returns the user mention syntax.
func (p *Platform) Mention(principalID string) string {
	return "<@" + principalID + ">"
}

// classify wraps a discordgo error in a *service.CapabilityError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := service.KindUnavailable
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusForbidden, http.StatusUnauthorized:
			kind = service.KindPermissionDenied
		case http.StatusNotFound:
			kind = service.KindNotFound
		}
	}
	return &service.CapabilityError{Op: op, Kind: kind, Err: err}
}

var _ service.ChatPlatform = (*Platform)(nil)
