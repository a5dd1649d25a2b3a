package speech

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/duetlabs/duet/config"
	"github.com/duetlabs/duet/errors"
	"github.com/google/uuid"
	openai "github.com/openai/openai-go"
)

const defaultVoice = "alloy"

// Synthesizer narrates one exchange and blocks until playback completes.
// The block is deliberate: it is the window the pipeline uses to pre-generate
// the next response.
type Synthesizer interface {
	Speak(ctx context.Context, voice, text string) error
}

// OpenAISynthesizer renders speech to an audio file and plays it through an
// external player command.
type OpenAISynthesizer struct {
	logger *slog.Logger
	config *config.SpeechConfig
	client *openai.Client
}

func NewOpenAISynthesizer(logger *slog.Logger, cfg *config.SpeechConfig, client *openai.Client) (*OpenAISynthesizer, error) {
	if client == nil {
		return nil, errors.Wrapf(errors.ErrBackendUnavailable, "speech requires an openai client")
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create audio dir %q", cfg.OutDir)
	}
	return &OpenAISynthesizer{logger: logger, config: cfg, client: client}, nil
}

func (s *OpenAISynthesizer) Speak(ctx context.Context, voice, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if voice == "" {
		voice = defaultVoice
	}

	res, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.F(openai.SpeechModel(s.config.Model)),
		Input:          openai.F(text),
		Voice:          openai.F(openai.AudioSpeechNewParamsVoice(voice)),
		ResponseFormat: openai.F(openai.AudioSpeechNewParamsResponseFormatMP3),
	})
	if err != nil {
		return errors.Wrapf(err, "speech synthesis failed")
	}
	defer res.Body.Close()

	path := filepath.Join(s.config.OutDir, uuid.NewString()+".mp3")
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create audio file")
	}
	if _, err := io.Copy(f, res.Body); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write audio file")
	}
	if err := f.Close(); err != nil {
		return errors.WithStack(err)
	}

	return s.play(ctx, path)
}

func (s *OpenAISynthesizer) play(ctx context.Context, path string) error {
	parts := strings.Fields(s.config.PlayerCommand)
	if len(parts) == 0 {
		s.logger.Warn("no player command configured, skipping playback", "file", path)
		return nil
	}
	args := append(parts[1:], path)

	cmd := exec.CommandContext(ctx, parts[0], args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "player %q failed", parts[0])
	}
	return nil
}

// NoopSynthesizer is used for headless runs. It sleeps in proportion to the
// text length so pipeline timing behaves as it would with real narration.
type NoopSynthesizer struct {
	// PerRune is the simulated narration time per rune; zero disables the
	// delay entirely.
	PerRune time.Duration
}

func (n NoopSynthesizer) Speak(ctx context.Context, _, text string) error {
	if n.PerRune <= 0 {
		return nil
	}
	select {
	case <-time.After(time.Duration(len([]rune(text))) * n.PerRune):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ Synthesizer = (*OpenAISynthesizer)(nil)
	_ Synthesizer = NoopSynthesizer{}
)
