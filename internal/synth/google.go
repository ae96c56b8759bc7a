package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// GoogleClient calls a Gemini-style generateContent endpoint with a
// multi-speaker speech configuration. One explicitly constructed client is
// shared across calls so the HTTP connection pool is reused between jobs.
type GoogleClient struct {
	hc       *http.Client
	endpoint string
	apiKey   string
}

func NewGoogleClient(endpoint, apiKey string, timeout time.Duration) (*GoogleClient, error) {
	if apiKey == "" {
		return nil, errors.New("missing synthesis API key")
	}
	return &GoogleClient{
		hc:       &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
	}, nil
}

type genRequest struct {
	Contents         []genContent        `json:"contents"`
	GenerationConfig genGenerationConfig `json:"generationConfig"`
}

type genContent struct {
	Parts []genPart `json:"parts"`
}

type genPart struct {
	Text       string         `json:"text,omitempty"`
	InlineData *genInlineData `json:"inlineData,omitempty"`
}

type genInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type genGenerationConfig struct {
	ResponseModalities []string        `json:"responseModalities"`
	SpeechConfig       genSpeechConfig `json:"speechConfig"`
}

type genSpeechConfig struct {
	MultiSpeakerVoiceConfig genMultiSpeaker `json:"multiSpeakerVoiceConfig"`
}

type genMultiSpeaker struct {
	SpeakerVoiceConfigs []genSpeakerVoice `json:"speakerVoiceConfigs"`
}

type genSpeakerVoice struct {
	Speaker     string         `json:"speaker"`
	VoiceConfig genVoiceConfig `json:"voiceConfig"`
}

type genVoiceConfig struct {
	PrebuiltVoiceConfig genPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type genPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type genResponse struct {
	Candidates []struct {
		Content struct {
			Parts []genPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Synthesize sends one payload and returns the first inline audio part.
func (c *GoogleClient) Synthesize(ctx context.Context, payload string, speakers map[string]string, model string) ([]byte, string, error) {
	if len(speakers) == 0 {
		return nil, "", errors.New("speaker map must contain at least one role")
	}

	roles := make([]string, 0, len(speakers))
	for role := range speakers {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	voices := make([]genSpeakerVoice, 0, len(roles))
	for _, role := range roles {
		name := speakers[role]
		if name == "" {
			return nil, "", fmt.Errorf("voice name missing for role %q", role)
		}
		voices = append(voices, genSpeakerVoice{
			Speaker: role,
			VoiceConfig: genVoiceConfig{
				PrebuiltVoiceConfig: genPrebuiltVoice{VoiceName: name},
			},
		})
	}

	reqBody := genRequest{
		Contents: []genContent{{Parts: []genPart{{Text: payload}}}},
		GenerationConfig: genGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: genSpeechConfig{
				MultiSpeakerVoiceConfig: genMultiSpeaker{SpeakerVoiceConfigs: voices},
			},
		},
	}

	blob, err := json.Marshal(reqBody)
	if err != nil {
		return nil, "", fmt.Errorf("serialize synthesis request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(blob))
	if err != nil {
		return nil, "", fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("call synthesis service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("synthesis service returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var decoded genResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, "", fmt.Errorf("decode synthesis response: %w", err)
	}

	for _, cand := range decoded.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, "", fmt.Errorf("decode inline audio: %w", err)
			}
			return data, part.InlineData.MimeType, nil
		}
	}
	return nil, "", ErrNoAudio
}
