package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/yndnr/memgate-go/internal/core/domain"
	"github.com/yndnr/memgate-go/internal/core/service"
	"github.com/yndnr/memgate-go/internal/telemetry/logger"
)

// DefaultHandleTimeout bounds one redemption.
const DefaultHandleTimeout = 30 * time.Second

// Handler processes one redemption request.
type Handler interface {
	Handle(ctx context.Context, req service.RedemptionRequest) error
}

// BotConfig configures the bot.
type BotConfig struct {
	Token         string
	GuildID       string
	Prefix        string // default "!"
	Command       string // default "verify"
	HandleTimeout time.Duration
	Logger        logger.Logger
}

// Bot owns the gateway session.
type Bot struct {
	cfg      BotConfig
	session  *discordgo.Session
	platform *Platform
	log      logger.Logger

	handler Handler
	ready   atomic.Bool
	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

// NewBot creates the session. Call SetHandler then Open.
func NewBot(cfg BotConfig) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord: bot token is required")
	}
	if cfg.GuildID == "" {
		return nil, errors.New("discord: guild id is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}
	if cfg.Command == "" {
		cfg.Command = "verify"
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = DefaultHandleTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	log := cfg.Logger.With("component", "discord")
	b := &Bot{
		cfg:      cfg,
		session:  s,
		platform: NewPlatform(s, cfg.GuildID, log),
		log:      log,
	}
	b.baseCtx, b.cancel = context.WithCancel(context.Background())

	s.AddHandler(b.onReady)
	s.AddHandler(b.onDisconnect)
	s.AddHandler(b.onMessageCreate)
	return b, nil
}

// Platform returns the ChatPlatform backed by this session.
func (b *Bot) Platform() *Platform { return b.platform }

// SetHandler sets the redemption handler. Must be called before Open.
func (b *Bot) SetHandler(h Handler) { b.handler = h }

// Open connects to the gateway.
func (b *Bot) Open() error {
	if b.handler == nil {
		return errors.New("discord: handler not set")
	}
	return b.session.Open()
}

// Ready reports whether the gateway session is established.
func (b *Bot) Ready() bool { return b.ready.Load() }

// Close stops taking requests, waits for in-flight handlers until ctx is
// done, then cancels the rest, removes pending replies and closes the
// gateway.
func (b *Bot) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()

	waitErr := b.wait(ctx)
	b.cancel()

	b.log.Info("removing pending replies", "pending", b.platform.Pending())
	flushErr := b.platform.Flush(ctx)
	b.ready.Store(false)
	return errors.Join(waitErr, flushErr, b.session.Close())
}

func (b *Bot) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("discord: in-flight redemptions cancelled: %w", ctx.Err())
	}
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.ready.Store(true)
	name := ""
	if r.User != nil {
		name = r.User.Username
	}
	b.log.Info("discord gateway ready", "user", name, "guilds", len(r.Guilds))
}

func (b *Bot) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	b.ready.Store(false)
	b.log.Warn("discord gateway disconnected")
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	token, ok := ParseCommand(m.Content, b.cfg.Prefix, b.cfg.Command)
	if !ok {
		return
	}
	b.dispatch(service.RedemptionRequest{
		ChannelID:   m.ChannelID,
		MessageID:   m.ID,
		PrincipalID: m.Author.ID,
		Token:       token,
	})
}

// dispatch runs the handler in the event goroutine. Requests arriving
// after Close started are not redeemed, only removed from the channel.
func (b *Bot) dispatch(req service.RedemptionRequest) {
	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		b.drop(req)
		return
	}
	b.inflight.Add(1)
	b.mu.Unlock()
	defer b.inflight.Done()

	ctx, cancel := context.WithTimeout(b.baseCtx, b.cfg.HandleTimeout)
	defer cancel()

	err := b.handler.Handle(ctx, req)
	switch {
	case err == nil:
	case domain.IsDomainError(err, ""):
		b.log.Debug("redemption rejected", "principal_id", req.PrincipalID, "code", domain.GetErrorCode(err))
	default:
		b.log.Error("redemption failed", "principal_id", req.PrincipalID, "error", err)
	}
}

func (b *Bot) drop(req service.RedemptionRequest) {
	b.log.Info("shutting down, redemption dropped", "principal_id", req.PrincipalID)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.platform.DeleteMessage(ctx, req.ChannelID, req.MessageID); err != nil {
		b.log.Warn("dropped request message not deleted", "message_id", req.MessageID, "error", err)
	}
}

// ParseCommand extracts the token argument of "<prefix><command> <token>".
// ok is false when content is not that command. A missing argument
// yields an empty token and ok true. Extra arguments are ignored.
func ParseCommand(content, prefix, command string) (token string, ok bool) {
	fields := strings.Fields(content)
	if len(fields) == 0 || fields[0] != prefix+command {
		return "", false
	}
	if len(fields) > 1 {
		token = fields[1]
	}
	return token, true
}
