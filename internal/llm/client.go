package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Bens368/IGIA/internal/domain"
	"github.com/Bens368/IGIA/internal/observability"
	"github.com/Bens368/IGIA/internal/tables"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultChatModel = "gpt-3.5-turbo"
	defaultModel     = "gpt-4o"
	defaultMaxTokens = 1000
)

// Options configures a Client
type Options struct {
	BaseURL     string
	APIKey      string
	VisionModel string
	TextModel   string
	ChatModel   string
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
	Referer     string
	Title       string
	Logger      *observability.Logger
}

// Client talks to an OpenAI-compatible chat completions endpoint
type Client struct {
	endpoint    string
	apiKey      string
	visionModel string
	textModel   string
	chatModel   string
	maxTokens   int
	referer     string
	title       string
	retry       RetryConfig
	httpClient  *http.Client
	logger      *observability.Logger
}

// Message represents a chat message. Content is either a string or a list
// of ContentPart values.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// ResponseFormat asks the model for a structured reply
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema names the schema a structured reply must follow
type JSONSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

// Request represents the API request structure
type Request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Stream         bool            `json:"stream,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// Response represents a streamed chunk
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Choice represents a single completion choice
type Choice struct {
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents a message delta in streaming response
type Delta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// completion is a non-streamed reply. Content is a pointer so a missing
// field can be told apart from an empty one.
type completion struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient creates a new LLM client
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, domain.ConfigError("API key is required", nil)
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if opts.VisionModel == "" {
		opts.VisionModel = defaultModel
	}
	if opts.TextModel == "" {
		opts.TextModel = defaultModel
	}
	if opts.ChatModel == "" {
		opts.ChatModel = defaultChatModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Logger == nil {
		opts.Logger = observability.Nop()
	}

	retry := DefaultRetryConfig()
	retry.MaxRetries = opts.MaxRetries

	return &Client{
		endpoint:    baseURL + "/chat/completions",
		apiKey:      opts.APIKey,
		visionModel: opts.VisionModel,
		textModel:   opts.TextModel,
		chatModel:   opts.ChatModel,
		maxTokens:   opts.MaxTokens,
		referer:     opts.Referer,
		title:       opts.Title,
		retry:       retry,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		logger:      opts.Logger.WithOperation("llm"),
	}, nil
}

// VisionModel returns the model used for table extraction
func (c *Client) VisionModel() string { return c.visionModel }

// TextModel returns the model used for recipe matching
func (c *Client) TextModel() string { return c.textModel }

// ChatModel returns the model used for the survey chat
func (c *Client) ChatModel() string { return c.chatModel }

// ExtractTable sends one flyer image and returns the raw structured reply
func (c *Client) ExtractTable(ctx context.Context, imagePath string) (string, error) {
	req, err := c.buildVisionRequest(imagePath)
	if err != nil {
		return "", domain.APIError("Failed to build request", err)
	}

	start := time.Now()
	reply, err := c.complete(ctx, req)
	if err != nil {
		return "", err
	}
	c.logger.Debug().Str("image", imagePath).Str("model", c.visionModel).Dur("duration", time.Since(start)).Msg("Table extracted")
	return reply, nil
}

// Complete sends a single free-text prompt to the text model
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	req := &Request{
		Model:     c.textModel,
		Messages:  []Message{{Role: domain.RoleUser, Content: prompt}},
		MaxTokens: c.maxTokens,
	}
	return c.complete(ctx, req)
}

// StreamChat sends the whole conversation and writes reply fragments to
// resultCh as they arrive. resultCh is left open.
func (c *Client) StreamChat(ctx context.Context, messages []domain.ChatMessage, resultCh chan<- string) error {
	req := &Request{
		Model:    c.chatModel,
		Messages: make([]Message, 0, len(messages)),
		Stream:   true,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, Message{Role: m.Role, Content: m.Content})
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.parseStream(ctx, resp.Body, resultCh)
}

// buildVisionRequest constructs the API request with the image
func (c *Client) buildVisionRequest(imagePath string) (*Request, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageData)

	msg := Message{
		Role: domain.RoleUser,
		Content: []ContentPart{
			{Type: "text", Text: tablePrompt},
			{Type: "image_url", ImageURL: &ImageURL{URL: imageURL}},
		},
	}

	return &Request{
		Model:     c.visionModel,
		Messages:  []Message{msg},
		MaxTokens: c.maxTokens,
		ResponseFormat: &ResponseFormat{
			Type: "json_schema",
			JSONSchema: &JSONSchema{
				Name:   tables.SchemaName,
				Strict: true,
				Schema: tables.Schema(),
			},
		},
	}, nil
}

func (c *Client) complete(ctx context.Context, req *Request) (string, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out completion
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domain.APIError("Failed to decode response", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == nil {
		return "", domain.APIError("response has no choices[0].message.content", nil)
	}
	return *out.Choices[0].Message.Content, nil
}

// send posts req and returns a 200 response; any other outcome is an APIError
func (c *Client) send(ctx context.Context, req *Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.APIError("Failed to marshal request", err)
	}

	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		if c.referer != "" {
			httpReq.Header.Set("HTTP-Referer", c.referer)
		}
		if c.title != "" {
			httpReq.Header.Set("X-Title", c.title)
		}

		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		return nil, domain.APIError("Failed to send request", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, domain.APIError(fmt.Sprintf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes))), nil)
	}
	return resp, nil
}

// parseStream parses the Server-Sent Events stream
func (c *Client) parseStream(ctx context.Context, body io.Reader, resultCh chan<- string) error {
	parser := NewStreamParser(body)
	if err := parser.ParseAll(ctx, resultCh); err != nil {
		return domain.APIError("Failed to parse stream", err)
	}
	return nil
}
