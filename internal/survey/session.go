// Package survey runs the streamed data-maturity questionnaire chat.
package survey

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Bens368/IGIA/internal/domain"
)

// hiddenMessages is the number of seeded messages never shown to the user.
const hiddenMessages = 2

// Session is one questionnaire conversation.
type Session struct {
	ID        string
	Model     string
	CreatedAt time.Time

	// Credential is the bearer secret supplied for this session, if any.
	Credential string

	sendMu       sync.Mutex // one exchange at a time
	mu           sync.RWMutex
	messages     []domain.ChatMessage
	lastAccessed time.Time
}

// NewSession seeds a conversation with the system prompt and the
// instructions file content.
func NewSession(model, instructions string) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		Model:     model,
		CreatedAt: now,
		messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: SystemPrompt},
			{Role: domain.RoleUser, Content: instructionsPreamble + instructions},
		},
		lastAccessed: now,
	}
}

// LoadInstructions reads the questionnaire instructions file.
func LoadInstructions(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", domain.IOError("Failed to read survey instructions", err)
	}
	return string(data), nil
}

// Messages returns a copy of the full history, seeded messages included.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ChatMessage(nil), s.messages...)
}

// Visible returns the messages exchanged with the user.
func (s *Session) Visible() []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) <= hiddenMessages {
		return []domain.ChatMessage{}
	}
	return append([]domain.ChatMessage(nil), s.messages[hiddenMessages:]...)
}

// LastAccessed returns when the session was last used.
func (s *Session) LastAccessed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccessed
}

// Send appends the user's text, streams the model's reply through onChunk
// and appends the reply to the history. A reply cut short by an error is
// kept when it is not empty, and the error is returned with it.
func (s *Session) Send(ctx context.Context, streamer domain.ChatStreamer, text string, onChunk func(string)) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ValidationError("message cannot be empty", nil)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	s.messages = append(s.messages, domain.ChatMessage{Role: domain.RoleUser, Content: text})
	history := append([]domain.ChatMessage(nil), s.messages...)
	s.lastAccessed = time.Now()
	s.mu.Unlock()

	chunkCh := make(chan string, 64)
	errCh := make(chan error, 1)
	go func() {
		defer close(chunkCh)
		errCh <- streamer.StreamChat(ctx, history, chunkCh)
	}()

	var reply strings.Builder
	for chunk := range chunkCh {
		reply.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	err := <-errCh

	full := reply.String()
	if full != "" {
		s.mu.Lock()
		s.messages = append(s.messages, domain.ChatMessage{Role: domain.RoleAssistant, Content: full})
		s.lastAccessed = time.Now()
		s.mu.Unlock()
	}
	return full, err
}
