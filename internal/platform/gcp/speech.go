package gcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

type SpeechConfig struct {
	LanguageCode string
	Model        string
}

// Speech transcribes short audio files.
type Speech struct {
	log    *logger.Logger
	client *speech.Client
	cfg    SpeechConfig
}

func NewSpeech(ctx context.Context, cfg SpeechConfig, log *logger.Logger) (*Speech, error) {
	c, err := speech.NewClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	return &Speech{log: log.With("service", "gcp.Speech"), client: c, cfg: cfg}, nil
}

func (s *Speech) Close() error { return s.client.Close() }

// Transcribe returns one transcript per recognised result, best alternative only.
func (s *Speech) Transcribe(ctx context.Context, audio []byte, filename string) ([]string, error) {
	if len(audio) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	op, err := s.client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               s.cfg.LanguageCode,
			Model:                      s.cfg.Model,
			EnableAutomaticPunctuation: true,
			Encoding:                   inferSpeechEncoding(filename),
		},
		Audio: &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	})
	if err != nil {
		return nil, fmt.Errorf("speech LongRunningRecognize: %w", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("speech wait: %w", err)
	}
	var out []string
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

func inferSpeechEncoding(filename string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case ".flac":
		return speechpb.RecognitionConfig_FLAC
	case ".mp3":
		return speechpb.RecognitionConfig_MP3
	case ".ogg", ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
