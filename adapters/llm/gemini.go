package llm

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/buzzylabs/buzzy/domain/repositories"
)

// maxFunctionRounds bounds how many times Complete feeds function
// results back to the model before giving up.
const maxFunctionRounds = 3

// GeminiLLM implements the LargeLanguageModel interface using Google's Gemini API
type GeminiLLM struct {
	client    *genai.Client
	config    GeminiConfig
	functions *FunctionRegistry
	logger    *zap.Logger
}

// NewGeminiLLM creates a new Gemini LLM instance
func NewGeminiLLM(config GeminiConfig, logger *zap.Logger) (*GeminiLLM, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiLLM{
		client:    client,
		config:    config,
		functions: NewFunctionRegistry(logger),
		logger:    logger,
	}, nil
}

// StreamCompletion starts a streamed completion of the conversation.
func (g *GeminiLLM) StreamCompletion(ctx context.Context, history []repositories.ChatMessage) (repositories.CompletionStream, error) {
	contents := convertToGeminiContents(history)
	if len(contents) == 0 {
		return nil, fmt.Errorf("empty conversation")
	}

	seq := g.client.Models.GenerateContentStream(ctx, g.config.Model, contents, g.generateConfig())
	next, stop := iter.Pull2(seq)

	return &geminiStream{next: next, stop: stop}, nil
}

// Complete answers the conversation in one round trip, resolving any
// function calls the model makes before returning the final text.
func (g *GeminiLLM) Complete(ctx context.Context, history []repositories.ChatMessage) (string, error) {
	contents := convertToGeminiContents(history)
	if len(contents) == 0 {
		return "", fmt.Errorf("empty conversation")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.config.TimeoutSeconds)*time.Second)
	defer cancel()

	for round := 0; round < maxFunctionRounds; round++ {
		response, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, g.generateConfig())
		if err != nil {
			return "", fmt.Errorf("failed to generate content: %w", err)
		}
		if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
			return "", fmt.Errorf("no content generated")
		}

		candidate := response.Candidates[0].Content
		call := firstFunctionCall(candidate)
		if call == nil {
			return joinText(candidate), nil
		}

		result, err := g.functions.Run(ctx, repositories.FunctionCall{
			Name: call.Name,
			Args: call.Args,
		})
		if err != nil {
			return "", fmt.Errorf("function %s failed: %w", call.Name, err)
		}
		if !result.Replay {
			return result.Text, nil
		}

		// Feed the result back and let the model phrase the answer.
		contents = append(contents, candidate, &genai.Content{
			Role: genai.RoleUser,
			Parts: []*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					Name:     call.Name,
					Response: map[string]any{"result": result.Text},
				},
			}},
		})
	}

	return "", fmt.Errorf("function resolution did not converge after %d rounds", maxFunctionRounds)
}

func (g *GeminiLLM) generateConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		SafetySettings:    defaultSafetySettings,
		Temperature:       genai.Ptr(g.config.Temperature),
		TopP:              genai.Ptr(g.config.TopP),
		TopK:              genai.Ptr(g.config.TopK),
		MaxOutputTokens:   int32(g.config.MaxOutputTokens),
		Tools: []*genai.Tool{
			{FunctionDeclarations: g.functions.Declarations()},
		},
	}
}

// geminiStream adapts the pull side of the Gemini response iterator.
type geminiStream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	pending []repositories.StreamDelta
}

func (s *geminiStream) Recv() (repositories.StreamDelta, error) {
	for {
		if len(s.pending) > 0 {
			delta := s.pending[0]
			s.pending = s.pending[1:]
			return delta, nil
		}

		response, err, ok := s.next()
		if !ok {
			s.stop()
			return repositories.StreamDelta{}, io.EOF
		}
		if err != nil {
			s.stop()
			return repositories.StreamDelta{}, err
		}
		if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
			continue
		}

		for _, part := range response.Candidates[0].Content.Parts {
			if part.Text != "" {
				s.pending = append(s.pending, repositories.StreamDelta{Text: part.Text})
			}
			if part.FunctionCall != nil {
				s.pending = append(s.pending, repositories.StreamDelta{
					FunctionCall: &repositories.FunctionCall{
						Name: part.FunctionCall.Name,
						Args: part.FunctionCall.Args,
					},
				})
			}
		}
	}
}

func firstFunctionCall(content *genai.Content) *genai.FunctionCall {
	for _, part := range content.Parts {
		if part.FunctionCall != nil {
			return part.FunctionCall
		}
	}
	return nil
}

func joinText(content *genai.Content) string {
	var b strings.Builder
	for _, part := range content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

// convertToGeminiContents converts repository messages to Gemini format
func convertToGeminiContents(messages []repositories.ChatMessage) []*genai.Content {
	var contents []*genai.Content

	for _, msg := range messages {
		var role genai.Role
		switch msg.Role {
		case repositories.AssistantRole:
			role = genai.RoleModel
		default:
			// System messages become user messages in Gemini
			role = genai.RoleUser
		}

		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	return contents
}

var (
	_ repositories.LargeLanguageModel = (*GeminiLLM)(nil)
	_ repositories.ChatCompleter      = (*GeminiLLM)(nil)
)
