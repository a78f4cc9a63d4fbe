// Package bot is the Discord front end: it routes gateway events to the
// agent, the media studio and the phrase counter, and renders their replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/Protocol-Lattice/lattice-discord/pkg/agent"
	"github.com/Protocol-Lattice/lattice-discord/pkg/concurrent"
	"github.com/Protocol-Lattice/lattice-discord/pkg/cooldown"
	"github.com/Protocol-Lattice/lattice-discord/pkg/counter"
	"github.com/Protocol-Lattice/lattice-discord/pkg/media"
	"github.com/Protocol-Lattice/lattice-discord/pkg/metrics"
	"github.com/Protocol-Lattice/lattice-discord/pkg/models"
	"github.com/Protocol-Lattice/lattice-discord/pkg/prompts"
)

// Session is the part of *discordgo.Session the bot talks to.
type Session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	HeartbeatLatency() time.Duration
}

// Agent runs chat handlers.
type Agent interface {
	Run(ctx context.Context, req agent.Request) (agent.Result, error)
	History(ctx context.Context, threadID string) ([]models.Message, error)
}

// Studio produces images and speech.
type Studio interface {
	Generate(ctx context.Context, backend, prompt string) (media.Artifact, error)
	Edit(ctx context.Context, backend, prompt string, src media.Image) (media.Artifact, error)
	Speak(ctx context.Context, voiceID, text string) (media.Artifact, error)
}

// PhraseCounter tracks how often users say certain phrases.
type PhraseCounter interface {
	Observe(ctx context.Context, userID, username, content string) (string, int, bool, error)
	Top(ctx context.Context, phrase string, n int) ([]counter.Entry, error)
	Phrases() []string
}

// Settings control routing and presentation.
type Settings struct {
	Prefix string
	// AllowedChannels restricts commands when non-empty; the last entry is
	// the channel users are redirected to.
	AllowedChannels []string
	RelayChannel    string
	RoastTargets    []string
	LoadingFrames   int
	FrameInterval   time.Duration
	Welcome         bool
	CommandTimeout  time.Duration
}

type Deps struct {
	Session    Session
	Agent      Agent
	Studio     Studio
	Counter    PhraseCounter
	Limiter    cooldown.Limiter
	Metrics    *metrics.Metrics
	Pool       *concurrent.WorkerPool
	Logger     *zap.Logger
	HTTPClient *http.Client
}

type Bot struct {
	settings Settings
	agent    Agent
	studio   Studio
	counter  PhraseCounter
	limiter  cooldown.Limiter
	metrics  *metrics.Metrics
	pool     *concurrent.WorkerPool
	logger   *zap.Logger
	http     *http.Client
	commands map[string]*command
	roast    map[string]struct{}

	mu      sync.RWMutex
	session Session
	selfID  string
}

func New(deps Deps, settings Settings) *Bot {
	if settings.Prefix == "" {
		settings.Prefix = "!"
	}
	if settings.LoadingFrames <= 0 {
		settings.LoadingFrames = len(loadingMessages)
	}
	if settings.FrameInterval <= 0 {
		settings.FrameInterval = 500 * time.Millisecond
	}
	if settings.CommandTimeout <= 0 {
		settings.CommandTimeout = 10 * time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = cooldown.NewMemory()
	}
	pool := deps.Pool
	if pool == nil {
		pool = concurrent.NewWorkerPool(8)
	}
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}
	b := &Bot{
		settings: settings,
		agent:    deps.Agent,
		studio:   deps.Studio,
		counter:  deps.Counter,
		limiter:  limiter,
		metrics:  deps.Metrics,
		pool:     pool,
		logger:   logger.Named("bot"),
		http:     client,
		session:  deps.Session,
		roast:    make(map[string]struct{}, len(settings.RoastTargets)),
	}
	for _, id := range settings.RoastTargets {
		if id = strings.TrimSpace(id); id != "" {
			b.roast[id] = struct{}{}
		}
	}
	b.commands = b.commandTable()
	return b
}

// Connect opens a gateway session and serves events until ctx is cancelled.
func (b *Bot) Connect(ctx context.Context, token string) error {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("error creating Discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMembers

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.setSelf(r.User.ID)
		b.logger.Info("connected to discord", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
	})
	dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		b.HandleMessage(ctx, m.Message)
	})
	dg.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		b.HandleMemberJoin(ctx, m.Member)
	})

	b.mu.Lock()
	b.session = dg
	b.mu.Unlock()

	if err := dg.Open(); err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}
	b.logger.Info("bot is now running")
	<-ctx.Done()
	b.logger.Info("closing discord session")
	return dg.Close()
}

// Connected reports whether the gateway handshake has completed.
func (b *Bot) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selfID != ""
}

func (b *Bot) setSelf(id string) {
	b.mu.Lock()
	b.selfID = id
	b.mu.Unlock()
}

func (b *Bot) sess() (Session, string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session, b.selfID
}

// SendDirect DMs a user on behalf of the send_discord_message tool.
func (b *Bot) SendDirect(ctx context.Context, userID, content string) (string, error) {
	s, _ := b.sess()
	if s == nil {
		return "", errors.New("discord session is not connected")
	}
	ch, err := s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("open DM channel: %w", err)
	}
	if _, err := s.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx)); err != nil {
		return "", err
	}
	name := userID
	if len(ch.Recipients) > 0 && ch.Recipients[0] != nil {
		name = ch.Recipients[0].Username
	}
	return name, nil
}

// HandleMessage is the single entry point for created messages.
func (b *Bot) HandleMessage(ctx context.Context, m *discordgo.Message) {
	s, self := b.sess()
	if s == nil || m == nil || m.Author == nil || m.Author.ID == self {
		return
	}

	b.countPhrases(ctx, s, m)

	// Relay lines are posted by a bridge bot or webhook.
	if b.settings.RelayChannel != "" && m.ChannelID == b.settings.RelayChannel {
		b.relay(ctx, s, m)
		return
	}
	if m.Author.Bot {
		return
	}

	if strings.HasPrefix(m.Content, b.settings.Prefix) {
		if !b.allowedChannel(m.ChannelID) {
			home := b.settings.AllowedChannels[len(b.settings.AllowedChannels)-1]
			b.send(s, m.ChannelID, fmt.Sprintf("%s, commands can only be used in <#%s>", m.Author.Mention(), home))
			return
		}
		b.dispatch(ctx, s, m)
		return
	}

	if _, ok := b.roast[m.Author.ID]; ok {
		b.roastUser(ctx, s, m)
	}
}

// HandleMemberJoin greets new members by DM.
func (b *Bot) HandleMemberJoin(ctx context.Context, member *discordgo.Member) {
	if !b.settings.Welcome || member == nil || member.User == nil || member.User.Bot {
		return
	}
	if _, err := b.SendDirect(ctx, member.User.ID, "Welcome to the server "+member.User.Username); err != nil {
		b.logger.Warn("welcome message failed", zap.String("user", member.User.ID), zap.Error(err))
	}
}

func (b *Bot) allowedChannel(channelID string) bool {
	if len(b.settings.AllowedChannels) == 0 {
		return true
	}
	for _, c := range b.settings.AllowedChannels {
		if c == channelID {
			return true
		}
	}
	return false
}

func (b *Bot) countPhrases(ctx context.Context, s Session, m *discordgo.Message) {
	if b.counter == nil || b.agent == nil {
		return
	}
	phrase, count, ok, err := b.counter.Observe(ctx, m.Author.ID, m.Author.String(), m.Content)
	if err != nil {
		b.logger.Warn("phrase counter failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	query := fmt.Sprintf("the specific word user said: %s\namount of time said: %d\nDiscord user id: %s", phrase, count, m.Author.ID)
	res, err := b.runAgent(ctx, agent.Request{Handler: prompts.WordCount, Query: query})
	if err != nil {
		b.logger.Warn("word count reaction failed", zap.String("phrase", phrase), zap.Error(err))
		return
	}
	b.send(s, m.ChannelID, fmt.Sprintf("%s said `%s` %d times! \n%s", m.Author.Mention(), phrase, count, res.Answer))
}

// relayHandlers maps the in-game command words to chat handlers.
var relayHandlers = map[string]prompts.Handler{
	"ai":     prompts.Assistant,
	"zeo":    prompts.Zeo,
	"poetry": prompts.Poetry,
	"rate":   prompts.Rate,
	"rizz":   prompts.Rizz,
}

// relay answers bridged game-chat lines of the form "player » !cmd text".
func (b *Bot) relay(ctx context.Context, s Session, m *discordgo.Message) {
	parts := strings.Split(m.Content, "»")
	if len(parts) < 2 {
		return
	}
	player := strings.TrimSpace(parts[0])
	line := strings.TrimSpace(parts[len(parts)-1])

	word, rest, _ := strings.Cut(line, " ")
	if !strings.HasPrefix(word, b.settings.Prefix) {
		return
	}
	handler, ok := relayHandlers[strings.ToLower(strings.TrimPrefix(word, b.settings.Prefix))]
	if !ok {
		return
	}
	query := strings.TrimSpace(rest)
	if query == "" {
		query = line
	}
	b.logger.Info("relay request", zap.String("player", player), zap.String("handler", handler.String()))

	res, err := b.runAgent(ctx, agent.Request{Handler: handler, Query: query})
	if err != nil {
		b.logger.Warn("relay request failed", zap.String("player", player), zap.Error(err))
		return
	}
	b.send(s, m.ChannelID, fmt.Sprintf("`@%s` %s", player, res.Answer))
}

func (b *Bot) roastUser(ctx context.Context, s Session, m *discordgo.Message) {
	if strings.TrimSpace(m.Content) == "" || b.agent == nil {
		return
	}
	res, err := b.runAgent(ctx, agent.Request{
		Handler: prompts.Roaster,
		Query:   m.Content,
		Context: "Discord user id: " + m.Author.ID,
	})
	if err != nil {
		b.logger.Warn("roast failed", zap.String("user", m.Author.ID), zap.Error(err))
		return
	}
	b.send(s, m.ChannelID, fmt.Sprintf("%s %s", m.Author.Mention(), res.Answer))
}

// runAgent bounds concurrent model runs with the worker pool.
func (b *Bot) runAgent(ctx context.Context, req agent.Request) (agent.Result, error) {
	if b.agent == nil {
		return agent.Result{}, errors.New("agent is not configured")
	}
	var res agent.Result
	err := b.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = b.agent.Run(ctx, req)
		return err
	})
	return res, err
}

func (b *Bot) send(s Session, channelID, content string) {
	if _, err := s.ChannelMessageSend(channelID, truncate(content)); err != nil {
		b.logger.Warn("send message failed", zap.String("channel", channelID), zap.Error(err))
	}
}

func (b *Bot) reply(s Session, m *discordgo.Message, content string) {
	if _, err := s.ChannelMessageSendReply(m.ChannelID, truncate(content), m.Reference()); err != nil {
		b.logger.Warn("reply failed", zap.String("channel", m.ChannelID), zap.Error(err))
	}
}

// maxMessageLen is Discord's per-message content limit.
const maxMessageLen = 2000

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	r := []rune(s)
	if len(r) <= maxMessageLen {
		return s
	}
	return string(r[:maxMessageLen-1]) + "…"
}
