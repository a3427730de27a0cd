// Package chatbot answers questions about stored lecture transcripts using
// an LLM chat backend.
package chatbot

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

const systemPrompt = "You are an AI assistant helping a student understand a video lecture. " +
	"Answer questions using only the transcript provided in the user's message."

// TranscriptSource reads a stored transcript by name.
type TranscriptSource interface {
	Download(ctx context.Context, name string) (string, error)
}

type Service struct {
	client      *openai.Client
	model       openai.ChatModel
	transcripts TranscriptSource
	logger      *zap.Logger
}

func New(apiKey string, transcripts TranscriptSource, logger *zap.Logger) *Service {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Service{
		client:      &client,
		model:       openai.ChatModelGPT4oMini,
		transcripts: transcripts,
		logger:      logger,
	}
}

// Complete sends one system+user exchange to the chat backend and returns
// the assistant text. contextText, when non-empty, is prepended to the user
// message the way the original prompt template framed it.
func (s *Service) Complete(ctx context.Context, system, user, contextText string) (string, error) {
	message := user
	if contextText != "" {
		message = fmt.Sprintf("Here's the transcript of the video: %s\n\nNow, answer the following question or perform the requested task: %s", contextText, user)
	}

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(message),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from chat backend")
	}
	return resp.Choices[0].Message.Content, nil
}

// Ask answers a question against a stored transcript.
func (s *Service) Ask(ctx context.Context, message, transcriptName string) (string, error) {
	transcript, err := s.transcripts.Download(ctx, transcriptName)
	if err != nil {
		return "", fmt.Errorf("load transcript: %w", err)
	}
	return s.Complete(ctx, systemPrompt, message, transcript)
}
