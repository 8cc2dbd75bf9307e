package discord

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/icefez/dispenser/internal/dispenser/service"
)

type Dependencies struct {
	Logger   *log.Logger
	Token    string
	GuildID  string // empty registers commands globally
	Engine   *service.Engine
	Access   *service.AccessService
	Notifier *OwnerNotifier
}

// Bot owns the Discord session and maps slash commands onto the engine and
// access service.  All distribution semantics live below it; the bot only
// parses interactions and renders outcomes.
type Bot struct {
	session *discordgo.Session
	logger  *log.Logger
	guildID string
	engine  *service.Engine
	access  *service.AccessService

	// attachment downloads (stock ingestion)
	httpClient *http.Client
}

func New(d Dependencies) (*Bot, error) {
	if d.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	s, err := discordgo.New("Bot " + d.Token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds

	b := &Bot{
		session:    s,
		logger:     d.Logger,
		guildID:    d.GuildID,
		engine:     d.Engine,
		access:     d.Access,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	s.AddHandler(b.onReady)
	s.AddHandler(b.onInteraction)

	if d.Notifier != nil {
		d.Notifier.bind(s)
	}

	return b, nil
}

func (b *Bot) Open() error  { return b.session.Open() }
func (b *Bot) Close() error { return b.session.Close() }

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	if _, err := s.ApplicationCommandBulkOverwrite(r.User.ID, b.guildID, commandDefinitions()); err != nil {
		b.logger.Printf("register commands: %v", err)
		return
	}
	b.logger.Printf("logged in as %s, slash commands synced", r.User.String())
}

// fetchAttachment downloads an uploaded stock file from Discord's CDN.
func (b *Bot) fetchAttachment(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("attachment fetch: status %d", resp.StatusCode)
	}

	// Stock files are plain text; 8 MiB is far beyond any sane upload.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// OwnerNotifier DMs every owner when remaining stock drops to the threshold.
// It satisfies service.Notifier; failures are logged and swallowed because a
// missed alert must never fail the distribution that triggered it.
type OwnerNotifier struct {
	logger *log.Logger
	owners []string

	mu      sync.Mutex
	session *discordgo.Session
}

func NewOwnerNotifier(owners []string, logger *log.Logger) *OwnerNotifier {
	return &OwnerNotifier{logger: logger, owners: owners}
}

// bind attaches the live session once the bot is constructed.  The notifier
// is created before the session exists because the engine needs it at
// construction time.
func (n *OwnerNotifier) bind(s *discordgo.Session) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.session = s
}

func (n *OwnerNotifier) LowStock(_ context.Context, remaining int) {
	n.mu.Lock()
	s := n.session
	n.mu.Unlock()
	if s == nil {
		return
	}

	embed := lowStockEmbed(remaining)
	for _, owner := range n.owners {
		ch, err := s.UserChannelCreate(owner)
		if err != nil {
			n.logger.Printf("low-stock notify %s: %v", owner, err)
			continue
		}
		if _, err := s.ChannelMessageSendEmbed(ch.ID, embed); err != nil {
			n.logger.Printf("low-stock notify %s: %v", owner, err)
		}
	}
}
