package service

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"

	"github.com/agriai/server/internal/models"
)

// VertexLLM generates chat replies and treatment advice using Google's
// Vertex AI. A fresh GenerativeModel is built per call because the system
// instruction differs per session; the underlying client is shared and safe
// for concurrent use.
type VertexLLM struct {
	client *genai.Client
	model  string
}

// NewVertexLLM creates a new Vertex AI LLM client.
func NewVertexLLM(ctx context.Context, projectID, location, model string) (*VertexLLM, error) {
	// Get credentials from environment or service account file
	var opts []option.ClientOption
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	client, err := genai.NewClient(ctx, projectID, location, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	return &VertexLLM{client: client, model: model}, nil
}

// Chat sends one user message along with the session history and returns the
// model's reply.
func (l *VertexLLM) Chat(ctx context.Context, system string, history []models.ChatTurn, message string) (string, error) {
	model := l.generative(system)

	cs := model.StartChat()
	cs.History = make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		cs.History = append(cs.History, &genai.Content{
			Role:  turn.Role,
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}
	return textFrom(resp)
}

// GenerateAdvice writes short treatment advice for a diagnosed crop disease.
func (l *VertexLLM) GenerateAdvice(ctx context.Context, crop, disease string) (string, error) {
	if crop == "" {
		crop = "unspecified"
	}
	prompt := fmt.Sprintf(`A smallholder farmer's %s crop shows signs of %q.

In plain language, give 3-5 short steps covering what the disease is, the
immediate treatment, and how to prevent it next season. Prefer affordable,
locally available options.`, crop, disease)

	resp, err := l.generative("").GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate advice: %w", err)
	}
	return textFrom(resp)
}

// Close closes the Vertex AI client.
func (l *VertexLLM) Close() error {
	return l.client.Close()
}

func (l *VertexLLM) generative(system string) *genai.GenerativeModel {
	model := l.client.GenerativeModel(l.model)
	model.SetTemperature(0.7)
	model.SetTopP(0.8)
	model.SetTopK(40)
	model.SetMaxOutputTokens(1024)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	return model
}

func textFrom(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response generated")
	}

	// Convert the response to string
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response type")
	}
	return string(text), nil
}
