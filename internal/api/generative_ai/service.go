package generativeAI

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

// FunctionCallRequest describes one structured-output call: a system
// instruction, the user's prompt, and a single function declaration the
// model is forced to call.
type FunctionCallRequest struct {
	SystemInstruction string
	UserPrompt        string
	Declaration       *genai.FunctionDeclaration
	Temperature       float32
	TopP              float32
	TopK              float32
	MaxOutputTokens   int32
}

type AIClient struct {
	client *genai.Client
	model  string
}

// NewAIClient builds a Gemini client. It returns an error when the API key
// is absent so callers can degrade instead of crashing.
func NewAIClient(ctx context.Context, model string) (*AIClient, error) {
	apiKey := os.Getenv("GOOGLE_GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_GEMINI_API_KEY environment variable is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = defaultModel
	}
	return &AIClient{
		client: client,
		model:  model,
	}, nil
}

// GenerateFunctionCall submits the prompt under a forced function-call
// contract and returns the call arguments. When the model answers with text
// instead of the declared call, the text is returned as the second value.
func (ai *AIClient) GenerateFunctionCall(ctx context.Context, req FunctionCallRequest) (map[string]any, string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](req.Temperature),
		TopP:            genai.Ptr[float32](req.TopP),
		TopK:            genai.Ptr[float32](req.TopK),
		MaxOutputTokens: req.MaxOutputTokens,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
		},
		Tools: []*genai.Tool{
			{FunctionDeclarations: []*genai.FunctionDeclaration{req.Declaration}},
		},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingConfigModeAny,
				AllowedFunctionNames: []string{req.Declaration.Name},
			},
		},
	}

	result, err := ai.client.Models.GenerateContent(ctx, ai.model, genai.Text(req.UserPrompt), config)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate function call: %w", err)
	}

	var text string
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.FunctionCall != nil && part.FunctionCall.Name == req.Declaration.Name {
				return part.FunctionCall.Args, "", nil
			}
			if part.Text != "" {
				text += part.Text
			}
		}
	}
	if text == "" {
		return nil, "", fmt.Errorf("no function call %q and no text in model response", req.Declaration.Name)
	}
	return nil, text, nil
}
