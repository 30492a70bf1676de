package capability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/easyops/convref-go/pkg/capability"
	coreerrors "github.com/easyops/convref-go/pkg/core/errors"
	"github.com/easyops/convref-go/pkg/core/llm"
	"github.com/easyops/convref-go/pkg/core/message"
)

type mockLLMProvider struct {
	generateFn func(ctx context.Context, req llm.Request) (llm.Response, error)
	requests   []llm.Request
}

func (m *mockLLMProvider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	m.requests = append(m.requests, req)
	return m.generateFn(ctx, req)
}

func (m *mockLLMProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, coreerrors.ErrEmbeddingUnsupported
}

func (m *mockLLMProvider) Name() string  { return "mock" }
func (m *mockLLMProvider) Model() string { return "mock-model" }
func (m *mockLLMProvider) Close() error  { return nil }

func replying(content string) *mockLLMProvider {
	return &mockLLMProvider{generateFn: func(ctx context.Context, req llm.Request) (llm.Response, error) {
		return llm.Response{Content: content}, nil
	}}
}

func TestIsAffirmative(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{"YES", true},
		{"yes.", true},
		{"Yes, they are.", true},
		{"NO", false},
		{"I don't know", false},
		{"maybe yes maybe no", false},
		{"", false},
		// "NOT" contains "NO", so an answer mentioning it is not affirmative
		{"YES, NOTHING ELSE", false},
	}

	for _, tt := range tests {
		if got := capability.IsAffirmative(tt.reply); got != tt.want {
			t.Errorf("IsAffirmative(%q) = %v, want %v", tt.reply, got, tt.want)
		}
	}
}

func TestParseWordList(t *testing.T) {
	got := capability.ParseWordList(" France, Capital ,, PARIS ,")
	want := []string{"france", "capital", "paris"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	if words := capability.ParseWordList("   "); len(words) != 0 {
		t.Fatalf("expected empty list, got %v", words)
	}
}

func TestAffirmativeResponse_AppendsInstructionWithoutMutating(t *testing.T) {
	provider := replying("YES")
	adapter := capability.New(provider)

	prefix := []message.Message{message.NewUserMessage("Is Paris in France?")}
	ok, err := adapter.AffirmativeResponse(context.Background(), prefix)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !ok {
		t.Fatal("expected affirmative")
	}

	if prefix[0].Content != "Is Paris in France?" {
		t.Errorf("caller slice mutated: %q", prefix[0].Content)
	}

	req := provider.requests[0]
	if got := req.Messages[0].Content; got != `Is Paris in France? Answer "YES" or "NO" only.` {
		t.Errorf("unexpected prompt %q", got)
	}
	if req.MaxTokens == nil || *req.MaxTokens != capability.AffirmativeMaxTokens {
		t.Errorf("expected max tokens %d", capability.AffirmativeMaxTokens)
	}
}

func TestListWords(t *testing.T) {
	provider := replying("France, capital")
	adapter := capability.New(provider)

	words, err := adapter.ListWords(context.Background(), []message.Message{message.NewUserMessage("keywords?")})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(words) != 2 || words[0] != "france" || words[1] != "capital" {
		t.Fatalf("unexpected words %v", words)
	}
	if req := provider.requests[0]; req.MaxTokens == nil || *req.MaxTokens != capability.ListWordsMaxTokens {
		t.Errorf("expected max tokens %d", capability.ListWordsMaxTokens)
	}
}

func TestAdapter_PropagatesErrors(t *testing.T) {
	wantErr := errors.New("model down")
	adapter := capability.New(&mockLLMProvider{generateFn: func(ctx context.Context, req llm.Request) (llm.Response, error) {
		return llm.Response{}, wantErr
	}})

	msgs := []message.Message{message.NewUserMessage("q")}
	if _, err := adapter.AffirmativeResponse(context.Background(), msgs); !errors.Is(err, wantErr) {
		t.Errorf("expected model error, got %v", err)
	}
	if _, err := adapter.ListWords(context.Background(), msgs); !errors.Is(err, wantErr) {
		t.Errorf("expected model error, got %v", err)
	}
	if _, err := adapter.Generate(context.Background(), msgs, 256); !errors.Is(err, wantErr) {
		t.Errorf("expected model error, got %v", err)
	}
}

func TestAdapter_EmptyConversation(t *testing.T) {
	adapter := capability.New(replying("YES"))
	if _, err := adapter.AffirmativeResponse(context.Background(), nil); !errors.Is(err, coreerrors.ErrEmptyConversation) {
		t.Fatalf("expected ErrEmptyConversation, got %v", err)
	}
}
