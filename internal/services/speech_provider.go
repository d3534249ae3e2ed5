package services

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/medscribe/medscribe-backend/internal/platform/logger"
	"github.com/medscribe/medscribe-backend/internal/types"
)

// regional BCP-47 codes the recognizer expects for the languages we accept
var speechLanguageCodes = map[string]string{
	"ta": "ta-IN",
	"te": "te-IN",
	"hi": "hi-IN",
	"en": "en-IN",
}

type gcpSpeechProvider struct {
	log    *logger.Logger
	client *speech.Client
}

// NewGCPSpeechProvider builds the primary cloud transcription provider.
// Credentials come from GOOGLE_APPLICATION_CREDENTIALS(_JSON) or ADC.
func NewGCPSpeechProvider(log *logger.Logger) (TranscriptionProvider, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "GCPSpeechProvider")

	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	ctx := context.Background()
	var c *speech.Client
	var err error
	if creds != "" {
		c, err = speech.NewClient(ctx, option.WithCredentialsFile(creds))
	} else {
		c, err = speech.NewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &gcpSpeechProvider{log: slog, client: c}, nil
}

func (p *gcpSpeechProvider) Name() string { return "gcp_speech" }

func (p *gcpSpeechProvider) Supports(language string) bool {
	_, ok := speechLanguageCodes[language]
	return ok
}

func (p *gcpSpeechProvider) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *gcpSpeechProvider) Transcribe(ctx context.Context, req TranscriptionRequest) (*providerResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if len(req.Audio) == 0 {
		// silent uploads are a data-quality problem, not a provider failure
		return &providerResult{Text: "", Confidence: 0}, nil
	}

	rcfg := buildRecognitionConfig(req.Format, speechLanguageCodes[req.Language])
	lrReq := &speechpb.LongRunningRecognizeRequest{
		Config: rcfg,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: req.Audio}},
	}

	op, err := p.client.LongRunningRecognize(ctx, lrReq)
	if err != nil {
		return nil, fmt.Errorf("speech longrunningrecognize: %w", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("speech longrunningrecognize wait: %w", err)
	}
	return parseRecognizeResponse(resp), nil
}

func buildRecognitionConfig(format string, languageCode string) *speechpb.RecognitionConfig {
	rc := &speechpb.RecognitionConfig{
		LanguageCode:               languageCode,
		Model:                      "latest_long",
		UseEnhanced:                true,
		EnableAutomaticPunctuation: true,
		EnableWordTimeOffsets:      true,
		Encoding:                   inferEncoding(format),
		// doctor-patient dialogue: exactly two speakers expected
		DiarizationConfig: &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          2,
			MaxSpeakerCount:          2,
		},
	}
	return rc
}

func inferEncoding(format string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), ".")) {
	case "wav":
		return speechpb.RecognitionConfig_LINEAR16
	case "flac":
		return speechpb.RecognitionConfig_FLAC
	case "mp3":
		return speechpb.RecognitionConfig_MP3
	case "ogg", "opus", "webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func parseRecognizeResponse(resp *speechpb.LongRunningRecognizeResponse) *providerResult {
	out := &providerResult{}
	if resp == nil || len(resp.Results) == 0 {
		return out
	}

	type word struct {
		w   string
		s   float64
		e   float64
		spk int
	}
	var words []word
	var full strings.Builder
	var confSum float64
	var confN int

	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		if strings.TrimSpace(alt.Transcript) == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(strings.TrimSpace(alt.Transcript))
		if alt.Confidence > 0 {
			confSum += float64(alt.Confidence)
			confN++
		}
		for _, ww := range alt.Words {
			if ww == nil {
				continue
			}
			words = append(words, word{
				w:   ww.Word,
				s:   durToSec(ww.StartTime),
				e:   durToSec(ww.EndTime),
				spk: int(ww.SpeakerTag),
			})
		}
	}

	out.Text = strings.TrimSpace(full.String())
	if confN > 0 {
		out.Confidence = confSum / float64(confN)
	}

	// group contiguous words by speaker tag into dialogue turns
	if len(words) > 0 {
		curSpk := words[0].spk
		curStart := words[0].s
		curEnd := words[0].e
		var buf strings.Builder
		flush := func() {
			txt := strings.TrimSpace(buf.String())
			if txt == "" {
				return
			}
			out.Segments = append(out.Segments, types.DiarizedSegment{
				SpeakerTag: curSpk,
				Text:       txt,
				StartSec:   curStart,
				EndSec:     curEnd,
			})
			buf.Reset()
		}
		for _, w := range words {
			if w.spk != curSpk && buf.Len() > 0 {
				flush()
				curSpk = w.spk
				curStart = w.s
				curEnd = w.e
			}
			if buf.Len() > 0 {
				buf.WriteString(" ")
			}
			buf.WriteString(w.w)
			curEnd = math.Max(curEnd, w.e)
		}
		flush()
	}
	return out
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}
