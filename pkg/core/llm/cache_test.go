package llm_test

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/easyops/convref-go/pkg/core/llm"
	"github.com/easyops/convref-go/pkg/core/message"
	"github.com/redis/go-redis/v9"
)

type countingProvider struct {
	calls int
	reply string
	err   error
}

func (p *countingProvider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	p.calls++
	if p.err != nil {
		return llm.Response{}, p.err
	}
	return llm.Response{Content: p.reply}, nil
}

func (p *countingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (p *countingProvider) Name() string  { return "counting" }
func (p *countingProvider) Model() string { return "counting-model" }
func (p *countingProvider) Close() error  { return nil }

func TestCachedProvider_HitsCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	inner := &countingProvider{reply: "Paris"}
	cached := llm.NewCachedProvider(inner, client, llm.WithCachePrefix("test:"))

	req := llm.NewRequest([]message.Message{message.NewUserMessage("Capital of France?")}, llm.WithRequestMaxTokens(256))

	for i := 0; i < 3; i++ {
		resp, err := cached.Generate(context.Background(), req)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.Content != "Paris" {
			t.Fatalf("expected 'Paris', got %q", resp.Content)
		}
	}

	if inner.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", inner.calls)
	}

	key, err := cached.Key(req)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if !mr.Exists(key) {
		t.Errorf("expected key %s in redis", key)
	}
}

func TestCachedProvider_KeyDependsOnRequest(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cached := llm.NewCachedProvider(&countingProvider{}, client)

	msgs := []message.Message{message.NewUserMessage("hello")}
	k1, _ := cached.Key(llm.NewRequest(msgs, llm.WithRequestMaxTokens(10)))
	k2, _ := cached.Key(llm.NewRequest(msgs, llm.WithRequestMaxTokens(256)))
	if k1 == k2 {
		t.Fatal("expected different keys for different max tokens")
	}
}

func TestCachedProvider_ErrorsAreNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	wantErr := errors.New("boom")
	inner := &countingProvider{err: wantErr}
	cached := llm.NewCachedProvider(inner, client)

	req := llm.NewRequest([]message.Message{message.NewUserMessage("hello")})
	for i := 0; i < 2; i++ {
		if _, err := cached.Generate(context.Background(), req); !errors.Is(err, wantErr) {
			t.Fatalf("expected upstream error, got %v", err)
		}
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 upstream calls, got %d", inner.calls)
	}
}

func TestCachedProvider_RedisDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	var cacheErrs int
	inner := &countingProvider{reply: "ok"}
	cached := llm.NewCachedProvider(inner, client, llm.OnCacheError(func(error) { cacheErrs++ }))

	resp, err := cached.Generate(context.Background(), llm.NewRequest([]message.Message{message.NewUserMessage("hello")}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("expected 'ok', got %q", resp.Content)
	}
	if cacheErrs == 0 {
		t.Error("expected cache errors to be reported")
	}
}
