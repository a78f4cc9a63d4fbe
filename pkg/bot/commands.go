package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/Protocol-Lattice/lattice-discord/pkg/agent"
	"github.com/Protocol-Lattice/lattice-discord/pkg/cooldown"
	"github.com/Protocol-Lattice/lattice-discord/pkg/media"
	"github.com/Protocol-Lattice/lattice-discord/pkg/models"
	"github.com/Protocol-Lattice/lattice-discord/pkg/prompts"
)

// invocation is one parsed command message.
type invocation struct {
	s    Session
	msg  *discordgo.Message
	name string
	args string
}

type command struct {
	name     string
	brief    string
	usage    string
	cooldown time.Duration
	run      func(ctx context.Context, inv invocation) error
}

// usageError is shown to the user verbatim instead of the generic error reply.
type usageError string

func (e usageError) Error() string { return string(e) }

var errMissingMsg = errors.New("msg is a required argument that is missing")

const deprecatedAsk = "This command is now deprecated. Please proceed with the new command: `!zeo <Your Msg>`\n Use `!help` command for further help. Thank You!"

func (b *Bot) commandTable() map[string]*command {
	list := []*command{
		{name: "zeo", brief: "Ask me your questions and I'll reply respectfully. Mostly.", usage: "zeo <msg>", cooldown: 30 * time.Second, run: b.chat(prompts.Zeo)},
		{name: "ai", brief: "Talk to AI", usage: "ai <msg>", cooldown: 30 * time.Second, run: b.chat(prompts.Assistant)},
		{name: "speak", brief: "Talk to AI through ElevenLabs", usage: "speak <zeo|ai|poetry> <msg>", cooldown: 60 * time.Second, run: b.speak},
		{name: "image", brief: "Create AI images using Gemini, Flux or DALL-E", usage: "image <gemini|flux|dall-e> <prompt>", cooldown: 30 * time.Second, run: b.image},
		{name: "edit", brief: "Edit an attached image using Gemini or Flux Kontext", usage: "edit <gemini|flux> <prompt> + image attachment", cooldown: 30 * time.Second, run: b.edit},
		{name: "ask", brief: "Deprecated. Use !zeo <Your Msg>", usage: "ask <msg>", cooldown: 15 * time.Second, run: b.ask},
		{name: "rizz", brief: "Spawns a pickup line", usage: "rizz", cooldown: 15 * time.Second, run: b.rizz},
		{name: "rate", brief: "Rates your pickup lines", usage: "rate <line>", cooldown: 15 * time.Second, run: b.rate},
		{name: "poetry", brief: "Get a beautiful piece of Urdu shayri", usage: "poetry <topic>", cooldown: 15 * time.Second, run: b.chat(prompts.Poetry)},
		{name: "react", brief: "React to the last !zeo answer", usage: "react <msg>", cooldown: 15 * time.Second, run: b.react},
		{name: "counts", brief: "Leaderboard for a tracked phrase", usage: "counts [phrase]", run: b.counts},
		{name: "ping", brief: "Checks the bot's latency.", usage: "ping", run: b.ping},
		{name: "help", brief: "Shows this message", usage: "help", run: b.help},
	}
	table := make(map[string]*command, len(list))
	for _, c := range list {
		table[c.name] = c
	}
	return table
}

func splitCommand(content string) (string, string) {
	content = strings.TrimSpace(content)
	name, args, _ := strings.Cut(content, " ")
	if i := strings.IndexAny(name, "\n\t"); i >= 0 {
		args = name[i+1:] + " " + args
		name = name[:i]
	}
	return strings.ToLower(name), strings.TrimSpace(args)
}

func (b *Bot) dispatch(ctx context.Context, s Session, m *discordgo.Message) {
	name, args := splitCommand(strings.TrimPrefix(m.Content, b.settings.Prefix))
	cmd, ok := b.commands[name]
	if !ok {
		return
	}

	if cmd.cooldown > 0 {
		retry, allowed, err := b.limiter.Allow(ctx, cooldown.Key(cmd.name, m.Author.ID), cmd.cooldown)
		if err != nil {
			b.logger.Warn("cooldown check failed", zap.String("command", cmd.name), zap.Error(err))
		} else if !allowed {
			b.metrics.ObserveCooldown(cmd.name)
			b.reply(s, m, cooldown.FormatWait(retry))
			return
		}
	}

	ctx, cancel := context.WithTimeout(ctx, b.settings.CommandTimeout)
	defer cancel()

	log := b.logger.With(zap.String("command", cmd.name), zap.String("user", m.Author.ID), zap.String("channel", m.ChannelID))
	log.Info("command received")
	err := cmd.run(ctx, invocation{s: s, msg: m, name: cmd.name, args: args})
	b.metrics.ObserveCommand(cmd.name, err)

	var usage usageError
	switch {
	case err == nil:
	case errors.As(err, &usage):
		b.reply(s, m, usage.Error())
	default:
		log.Warn("command failed", zap.Error(err))
		b.reply(s, m, "Sorry an error occurred -> "+err.Error())
	}
}

func memberContext(m *discordgo.Message) string {
	return "Discord member id: " + m.Author.ID
}

// chat runs a handler and replies with the formatted answer.
func (b *Bot) chat(h prompts.Handler) func(context.Context, invocation) error {
	return func(ctx context.Context, inv invocation) error {
		if inv.args == "" {
			return errMissingMsg
		}
		return b.answer(ctx, inv, agent.Request{Handler: h, Query: inv.args, Context: memberContext(inv.msg)})
	}
}

// answer runs req behind the loading animation and replies with the result.
func (b *Bot) answer(ctx context.Context, inv invocation, req agent.Request) error {
	return b.withLoading(ctx, inv.s, inv.msg.ChannelID, func() error {
		res, err := b.runAgent(ctx, req)
		if err != nil {
			return err
		}
		b.reply(inv.s, inv.msg, res.Format(inv.msg.Author.Mention()))
		return nil
	})
}

var speakHandlers = map[string]prompts.Handler{
	"zeo":    prompts.Zeo,
	"ai":     prompts.Assistant,
	"poetry": prompts.Poetry,
}

func (b *Bot) speak(ctx context.Context, inv invocation) error {
	which, msg, _ := strings.Cut(inv.args, " ")
	h, ok := speakHandlers[strings.ToLower(which)]
	if !ok {
		return usageError("Invalid handler. Please use one of the following: zeo, ai, poetry")
	}
	if msg = strings.TrimSpace(msg); msg == "" {
		return errMissingMsg
	}
	if b.studio == nil {
		return errors.New("speech is not configured")
	}
	return b.withLoading(ctx, inv.s, inv.msg.ChannelID, func() error {
		res, err := b.runAgent(ctx, agent.Request{Handler: h, Query: msg, Context: memberContext(inv.msg)})
		if err != nil {
			return err
		}
		art, err := b.studio.Speak(ctx, prompts.Voice(h), res.Answer)
		if err != nil {
			return err
		}
		return b.sendFile(inv.s, inv.msg.ChannelID, art.Path, res.Footer())
	})
}

var imageBackends = []string{media.BackendGemini, media.BackendFlux, media.BackendDalle}

func (b *Bot) image(ctx context.Context, inv invocation) error {
	backend, prompt, _ := strings.Cut(inv.args, " ")
	backend = strings.ToLower(backend)
	if !contains(imageBackends, backend) {
		return usageError("Invalid model. Please use one of the following: gemini, flux, dall-e \nExample: !image `gemini` or `flux` or `dall-e` <Your Prompt>")
	}
	if prompt = strings.TrimSpace(prompt); prompt == "" {
		return errMissingMsg
	}
	if b.studio == nil {
		return errors.New("image generation is not configured")
	}
	return b.withLoading(ctx, inv.s, inv.msg.ChannelID, func() error {
		art, err := b.studio.Generate(ctx, backend, prompt)
		if err != nil {
			return err
		}
		return b.sendFile(inv.s, inv.msg.ChannelID, art.Path, art.Caption)
	})
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

func (b *Bot) edit(ctx context.Context, inv invocation) error {
	backend, prompt, _ := strings.Cut(inv.args, " ")
	backend = strings.ToLower(backend)
	if backend != media.BackendGemini && backend != media.BackendFlux {
		return usageError("Invalid model. Please use one of the following: gemini, flux \nExample: !edit `gemini` or `flux` <Your Prompt> (with an image attached)")
	}
	if prompt = strings.TrimSpace(prompt); prompt == "" {
		return errMissingMsg
	}
	att := firstImage(inv.msg.Attachments)
	if att == nil {
		return usageError("Please attach an image to edit.")
	}
	if b.studio == nil {
		return errors.New("image editing is not configured")
	}
	return b.withLoading(ctx, inv.s, inv.msg.ChannelID, func() error {
		src, err := b.fetchAttachment(ctx, att)
		if err != nil {
			return err
		}
		art, err := b.studio.Edit(ctx, backend, prompt, src)
		if err != nil {
			return err
		}
		return b.sendFile(inv.s, inv.msg.ChannelID, art.Path, inv.msg.Author.Mention()+" "+art.Caption)
	})
}

func firstImage(atts []*discordgo.MessageAttachment) *discordgo.MessageAttachment {
	for _, a := range atts {
		if a == nil {
			continue
		}
		if contains(imageExtensions, strings.ToLower(filepath.Ext(a.Filename))) || strings.HasPrefix(a.ContentType, "image/") {
			return a
		}
	}
	return nil
}

func (b *Bot) fetchAttachment(ctx context.Context, att *discordgo.MessageAttachment) (media.Image, error) {
	if att.Size > media.MaxUploadBytes {
		return media.Image{}, media.ErrTooLarge
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return media.Image{}, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return media.Image{}, fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return media.Image{}, fmt.Errorf("download attachment: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, media.MaxUploadBytes+1))
	if err != nil {
		return media.Image{}, err
	}
	if len(data) > media.MaxUploadBytes {
		return media.Image{}, media.ErrTooLarge
	}
	mime := att.ContentType
	if mime == "" {
		mime = resp.Header.Get("Content-Type")
	}
	return media.Image{Data: data, MIME: mime}, nil
}

func (b *Bot) sendFile(s Session, channelID, path, content string) error {
	if _, err := media.CheckUpload(path); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: truncate(content),
		Files:   []*discordgo.File{{Name: filepath.Base(path), Reader: f}},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (b *Bot) ask(_ context.Context, inv invocation) error {
	b.reply(inv.s, inv.msg, deprecatedAsk)
	return nil
}

func (b *Bot) rizz(ctx context.Context, inv invocation) error {
	query := inv.args
	if query == "" {
		query = "Give me your best pickup line."
	}
	return b.answer(ctx, inv, agent.Request{Handler: prompts.Rizz, Query: query, Context: memberContext(inv.msg)})
}

func (b *Bot) rate(ctx context.Context, inv invocation) error {
	if inv.args == "" {
		return errMissingMsg
	}
	return b.answer(ctx, inv, agent.Request{
		Handler: prompts.Rate,
		Query:   inv.args,
		Context: fmt.Sprintf("Discord user pickup line: %s\nDiscord user id: %s", inv.args, inv.msg.Author.ID),
	})
}

// react comments on the most recent !zeo answer.
func (b *Bot) react(ctx context.Context, inv invocation) error {
	if inv.args == "" {
		return errMissingMsg
	}
	if b.agent == nil {
		return errors.New("agent is not configured")
	}
	history, err := b.agent.History(ctx, prompts.ThreadID(prompts.Zeo))
	if err != nil {
		return err
	}
	last := lastAnswer(history)
	if last == "" {
		return usageError("Hold up! What are you reacting to? Maybe you forgot to ask a question first 🙄")
	}
	return b.answer(ctx, inv, agent.Request{
		Handler: prompts.React,
		Query:   inv.args,
		Context: fmt.Sprintf("%s\nThe answer being reacted to:\n%s", memberContext(inv.msg), last),
	})
}

func lastAnswer(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role == models.RoleAssistant && !m.HasToolCalls() && strings.TrimSpace(m.Content) != "" {
			return m.Content
		}
	}
	return ""
}

func (b *Bot) counts(ctx context.Context, inv invocation) error {
	if b.counter == nil {
		return errors.New("phrase counter is not configured")
	}
	phrases := b.counter.Phrases()
	if inv.args == "" {
		b.reply(inv.s, inv.msg, "Tracked phrases: `"+strings.Join(phrases, "`, `")+"`\nUse `"+b.settings.Prefix+"counts <phrase>` to see the leaderboard.")
		return nil
	}
	phrase := strings.ToLower(inv.args)
	if !contains(phrases, phrase) {
		return usageError(fmt.Sprintf("`%s` is not a tracked phrase.", inv.args))
	}
	top, err := b.counter.Top(ctx, phrase, 5)
	if err != nil {
		return err
	}
	if len(top) == 0 {
		b.reply(inv.s, inv.msg, fmt.Sprintf("Nobody has said `%s` yet.", phrase))
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Top `%s` sayers:", phrase)
	for i, e := range top {
		fmt.Fprintf(&sb, "\n%d. %s - %d", i+1, e.Username, e.Count)
	}
	b.reply(inv.s, inv.msg, sb.String())
	return nil
}

func (b *Bot) ping(_ context.Context, inv invocation) error {
	ms := float64(inv.s.HeartbeatLatency().Microseconds()) / 1000
	b.reply(inv.s, inv.msg, fmt.Sprintf("Pong! 🏓 (%.1fms)", ms))
	return nil
}

func (b *Bot) help(_ context.Context, inv invocation) error {
	names := make([]string, 0, len(b.commands))
	for name := range b.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	sb.WriteString("**Commands**")
	for _, name := range names {
		c := b.commands[name]
		fmt.Fprintf(&sb, "\n`%s%s` %s", b.settings.Prefix, c.usage, c.brief)
	}
	b.reply(inv.s, inv.msg, sb.String())
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
