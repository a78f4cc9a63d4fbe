package bot

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var loadingMessages = []string{
	"Thinking...",
	"Stiring up thoughts",
	"Processing...",
	"Contemplating life choices...",
	"Seeking Enlightenment...",
	"Running some code...",
}

func loadingLine() string { return loadingMessages[rand.IntN(len(loadingMessages))] }

// withLoading shows an animated placeholder while fn runs and removes it
// afterwards, whatever fn returns.
func (b *Bot) withLoading(ctx context.Context, s Session, channelID string, fn func() error) error {
	placeholder, err := s.ChannelMessageSend(channelID, loadingLine(), discordgo.WithContext(ctx))
	if err != nil {
		b.logger.Debug("loading placeholder failed", zap.Error(err))
		return fn()
	}

	animCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(b.settings.FrameInterval)
		defer ticker.Stop()
		for i := 0; i < b.settings.LoadingFrames; i++ {
			select {
			case <-animCtx.Done():
				return
			case <-ticker.C:
			}
			if _, err := s.ChannelMessageEdit(channelID, placeholder.ID, loadingLine()); err != nil {
				return
			}
		}
	}()

	err = fn()
	stop()
	<-done
	if derr := s.ChannelMessageDelete(channelID, placeholder.ID); derr != nil {
		b.logger.Debug("loading placeholder delete failed", zap.Error(derr))
	}
	return err
}
