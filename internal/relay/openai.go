package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"os"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/furkannumanoglu/ai-personal-assistant/internal/api"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/conversation"
)

type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	HTTPClient   *http.Client
	ChatModel    string
	SpeechModel  string
	Voice        string
	SystemPrompt string
}

// OpenAI serves all three backends from one client: whisper-1 for
// transcription, chat completions for replies and the speech endpoint for
// synthesis.
type OpenAI struct {
	client openai.Client
	cfg    OpenAIConfig
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key not set")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = string(openai.ChatModelGPT4)
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = string(openai.SpeechModelTTS1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.AudioSpeechNewParamsVoiceAlloy)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAI{client: openai.NewClient(opts...), cfg: cfg}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	resp, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModelWhisper1,
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return resp.Text, nil
}

func (o *OpenAI) Respond(ctx context.Context, history []conversation.Message, text string) (Reply, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	msgs = append(msgs, openai.SystemMessage(o.cfg.SystemPrompt))
	for _, m := range history {
		switch m.Role {
		case "user":
			msgs = append(msgs, openai.UserMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			log.Debug("Skipping history message", "role", m.Role)
		}
	}
	msgs = append(msgs, openai.UserMessage(text))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(o.cfg.ChatModel),
	})
	if err != nil {
		return Reply{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Reply{}, fmt.Errorf("no choices in response")
	}

	return Reply{
		Text:  resp.Choices[0].Message.Content,
		Model: o.cfg.ChatModel,
		Usage: &api.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (o *OpenAI) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(o.cfg.SpeechModel),
		Voice:          openai.AudioSpeechNewParamsVoice(o.cfg.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, "", fmt.Errorf("speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read speech: %w", err)
	}
	return data, "audio/mpeg", nil
}
