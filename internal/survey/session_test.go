package survey

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bens368/IGIA/internal/domain"
)

// fakeStreamer replays fixed fragments, then returns err.
type fakeStreamer struct {
	chunks []string
	err    error
	seen   [][]domain.ChatMessage
}

func (f *fakeStreamer) StreamChat(ctx context.Context, messages []domain.ChatMessage, resultCh chan<- string) error {
	f.seen = append(f.seen, messages)
	for _, c := range f.chunks {
		resultCh <- c
	}
	return f.err
}

func TestNewSession_SeedsHiddenMessages(t *testing.T) {
	s := NewSession("gpt-3.5-turbo", "Q1. Who owns your data?")

	all := s.Messages()
	require.Len(t, all, 2)
	assert.Equal(t, domain.RoleSystem, all[0].Role)
	assert.Equal(t, SystemPrompt, all[0].Content)
	assert.Equal(t, domain.RoleUser, all[1].Role)
	assert.Equal(t, "Here is the content of the file:\nQ1. Who owns your data?", all[1].Content)

	assert.Empty(t, s.Visible())
	assert.NotEmpty(t, s.ID)
}

func TestSystemPrompt_Content(t *testing.T) {
	for _, want := range []string{
		"one by one", "instinct, frame, interpret, experiment",
		"fragment, harmony, prediction, activation", "www.clicketmortar.com",
		"I'm here to help assess your data-driven marketing maturity.",
	} {
		assert.Contains(t, SystemPrompt, want)
	}
}

func TestSend_StreamsAndRecordsReply(t *testing.T) {
	s := NewSession("m", "instructions")
	streamer := &fakeStreamer{chunks: []string{"1. How", " is data", " stored?"}}

	var got []string
	reply, err := s.Send(context.Background(), streamer, "  Hello  ", func(c string) { got = append(got, c) })
	require.NoError(t, err)

	assert.Equal(t, "1. How is data stored?", reply)
	assert.Equal(t, []string{"1. How", " is data", " stored?"}, got)

	require.Len(t, streamer.seen, 1)
	sent := streamer.seen[0]
	require.Len(t, sent, 3, "the whole history is sent")
	assert.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: "Hello"}, sent[2])

	assert.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "Hello"},
		{Role: domain.RoleAssistant, Content: "1. How is data stored?"},
	}, s.Visible())
}

func TestSend_MultiTurnHistoryGrows(t *testing.T) {
	s := NewSession("m", "i")
	streamer := &fakeStreamer{chunks: []string{"ok"}}

	for _, msg := range []string{"a", "b", "c"} {
		_, err := s.Send(context.Background(), streamer, msg, nil)
		require.NoError(t, err)
	}
	assert.Len(t, streamer.seen[2], 2+5)
	assert.Len(t, s.Visible(), 6)
}

func TestSend_PartialReplyKeptOnError(t *testing.T) {
	s := NewSession("m", "i")
	streamErr := errors.New("connection reset")
	streamer := &fakeStreamer{chunks: []string{"Question 1"}, err: streamErr}

	reply, err := s.Send(context.Background(), streamer, "go", nil)
	assert.ErrorIs(t, err, streamErr)
	assert.Equal(t, "Question 1", reply)

	visible := s.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, "Question 1", visible[1].Content)
}

func TestSend_EmptyReplyNotRecorded(t *testing.T) {
	s := NewSession("m", "i")
	streamer := &fakeStreamer{err: domain.APIError("API returned status 401", nil)}

	reply, err := s.Send(context.Background(), streamer, "go", nil)
	require.Error(t, err)
	assert.Empty(t, reply)

	visible := s.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, domain.RoleUser, visible[0].Role)
}

func TestSend_EmptyMessage(t *testing.T) {
	s := NewSession("m", "i")
	_, err := s.Send(context.Background(), &fakeStreamer{}, "   ", nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
	assert.Empty(t, s.Visible())
}

func TestSend_ConcurrentCallsAreSerialized(t *testing.T) {
	s := NewSession("m", "i")
	streamer := &lockedStreamer{}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Send(context.Background(), streamer, "x", nil)
		}()
	}
	wg.Wait()

	visible := s.Visible()
	require.Len(t, visible, 10)
	for i := 0; i < len(visible); i += 2 {
		assert.Equal(t, domain.RoleUser, visible[i].Role)
		assert.Equal(t, domain.RoleAssistant, visible[i+1].Role)
	}
}

type lockedStreamer struct{ mu sync.Mutex }

func (l *lockedStreamer) StreamChat(ctx context.Context, messages []domain.ChatMessage, resultCh chan<- string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	resultCh <- "reply"
	return nil
}

func TestLoadInstructions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instructions.txt")
	require.NoError(t, os.WriteFile(path, []byte("Q1\nQ2\n"), 0644))

	got, err := LoadInstructions(path)
	require.NoError(t, err)
	assert.Equal(t, "Q1\nQ2\n", got)

	_, err = LoadInstructions(filepath.Join(t.TempDir(), "missing.txt"))
	assert.True(t, domain.IsType(err, domain.ErrorTypeIO))
}

func TestStore(t *testing.T) {
	st := NewStore(2, time.Hour)

	a, b, c := NewSession("m", "a"), NewSession("m", "b"), NewSession("m", "c")
	st.Add(a)
	time.Sleep(time.Millisecond)
	st.Add(b)

	got, ok := st.Get(a.ID)
	require.True(t, ok)
	assert.Same(t, a, got)

	// touching a makes b the least recently used
	_, err := a.Send(context.Background(), &fakeStreamer{chunks: []string{"x"}}, "hi", nil)
	require.NoError(t, err)

	st.Add(c)
	assert.Equal(t, 2, st.Len())
	_, ok = st.Get(b.ID)
	assert.False(t, ok)
	_, ok = st.Get(a.ID)
	assert.True(t, ok)

	st.Delete(a.ID)
	assert.Equal(t, 1, st.Len())
}

func TestStore_Prune(t *testing.T) {
	st := NewStore(0, time.Minute)
	st.Add(NewSession("m", "a"))

	assert.Equal(t, 0, st.Prune(time.Now()))
	assert.Equal(t, 1, st.Prune(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 0, st.Len())
}

func TestVisible_ReturnsCopy(t *testing.T) {
	s := NewSession("m", "i")
	_, err := s.Send(context.Background(), &fakeStreamer{chunks: []string{"r"}}, "q", nil)
	require.NoError(t, err)

	v := s.Visible()
	v[0].Content = strings.ToUpper(v[0].Content)
	assert.Equal(t, "q", s.Visible()[0].Content)
}
