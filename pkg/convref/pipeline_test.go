package convref_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/easyops/convref-go/pkg/convref"
	"github.com/easyops/convref-go/pkg/core/config"
	coreerrors "github.com/easyops/convref-go/pkg/core/errors"
	"github.com/easyops/convref-go/pkg/core/llm"
	"github.com/easyops/convref-go/pkg/core/message"
	"github.com/easyops/convref-go/pkg/otel"
	"github.com/easyops/convref-go/pkg/summarytree"
)

const parisDoc = "Paris is the capital of France.\n\nLyon is a city in France."

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

// scripted 按提示类型返回预设回复
type scripted struct {
	keywords    string
	affirmative string
	answer      string
}

func (s scripted) provider() *mockLLMProvider {
	return &mockLLMProvider{generateFn: func(ctx context.Context, req llm.Request) (llm.Response, error) {
		last := req.Messages[len(req.Messages)-1].Content
		switch {
		case strings.HasSuffix(last, "Answer with a comma-separated list only."):
			return llm.Response{Content: s.keywords}, nil
		case strings.HasSuffix(last, `Answer "YES" or "NO" only.`):
			return llm.Response{Content: s.affirmative}, nil
		default:
			return llm.Response{Content: s.answer}, nil
		}
	}}
}

type mockRecognizer struct {
	entities map[string][]string
}

func (r mockRecognizer) Entities(ctx context.Context, text string) ([]string, error) {
	return r.entities[text], nil
}

// prefixCounter 按字符截断
type prefixCounter struct{}

func (prefixCounter) Count(text string) int { return len(text) }

func (prefixCounter) Truncate(text string, maxTokens int) string {
	if len(text) <= maxTokens {
		return text
	}
	return text[:maxTokens]
}

func parisSample() convref.Sample {
	return convref.Sample{
		ID:          "s1",
		DocumentIDs: []string{"d1"},
		Conversation: []message.Message{
			message.NewUserMessage("Hi, I am planning a trip."),
			message.NewAssistantMessage("Great, where to?"),
			message.NewUserMessage("What is the capital of France?"),
		},
	}
}

func docs() map[string]string {
	return map[string]string{"d1": parisDoc}
}

func newPipeline(t *testing.T, lm llm.Provider, cfg convref.Config, opts ...convref.Option) *convref.Pipeline {
	t.Helper()
	opts = append([]convref.Option{convref.WithTokenCounter(prefixCounter{})}, opts...)
	p, err := convref.New(lm, cfg, opts...)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestAnswer_NarrowsToVerbatimAnswer(t *testing.T) {
	lm := scripted{keywords: "capital, France", answer: "Paris is the capital of France."}.provider()
	p := newPipeline(t, lm, convref.DefaultConfig())

	label, err := p.Answer(context.Background(), parisSample(), docs(), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !label.DocumentRelevant {
		t.Fatal("expected document to be relevant")
	}
	if label.AnswerText() != "Paris is the capital of France." {
		t.Errorf("unexpected answer %q", label.AnswerText())
	}
	if len(label.Segments) != 1 || label.Segments[0] != "Paris is the capital of France." {
		t.Errorf("expected segments narrowed to the answer, got %q", label.Segments)
	}
	if label.TimeTaken == nil {
		t.Error("expected time taken to be set")
	}

	if len(lm.requests) != 2 {
		t.Fatalf("expected keyword and answer requests, got %d", len(lm.requests))
	}
	kw := lm.requests[0]
	if *kw.MaxTokens != 100 {
		t.Errorf("expected keyword budget 100, got %d", *kw.MaxTokens)
	}
	prompt := kw.Messages[0].Content
	if !strings.HasPrefix(prompt, "Here are the document(s) separated by <div>s: <div>"+parisDoc+"</div>\nThis is the query I want to answer: What is the capital of France?\n") {
		t.Errorf("unexpected keyword prompt %q", prompt)
	}

	gen := lm.requests[1]
	if *gen.MaxTokens != convref.AnswerMaxTokens {
		t.Errorf("expected answer budget %d, got %d", convref.AnswerMaxTokens, *gen.MaxTokens)
	}
	if gen.Messages[0].Role != message.RoleSystem ||
		gen.Messages[0].Content != "You are a helpful assistant. Answer with the single most relevant snippet from the document(s) verbatim and nothing else. Key Excerpts: <div>"+parisDoc+"</div>" {
		t.Errorf("unexpected answer system prompt %q", gen.Messages[0].Content)
	}
	if len(gen.Messages) != 4 {
		t.Errorf("expected system prompt plus full conversation, got %d messages", len(gen.Messages))
	}
}

func TestAnswer_NonVerbatimKeepsEvidence(t *testing.T) {
	lm := scripted{keywords: "france", answer: "It is Paris."}.provider()
	label, err := newPipeline(t, lm, convref.DefaultConfig()).Answer(context.Background(), parisSample(), docs(), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if label.AnswerText() != "It is Paris." {
		t.Errorf("unexpected answer %q", label.AnswerText())
	}
	if len(label.Segments) != 1 || label.Segments[0] != parisDoc {
		t.Errorf("expected evidence to be kept, got %q", label.Segments)
	}
}

func TestAnswer_SentenceWindows(t *testing.T) {
	doc := "Intro line. The museum opens at 9am. It closes at 5pm. Tickets cost 10 euros."
	sample := convref.Sample{
		DocumentIDs:  []string{"m"},
		Conversation: []message.Message{message.NewUserMessage("When does the museum open?")},
	}
	lm := scripted{keywords: "opens, MUSEUM", answer: "no idea"}.provider()
	label, err := newPipeline(t, lm, convref.DefaultConfig()).Answer(context.Background(), sample, map[string]string{"m": doc}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := "Intro line. The museum opens at 9am. It closes at 5pm."
	if len(label.Segments) != 1 || label.Segments[0] != want {
		t.Errorf("expected the merged window %q, got %q", want, label.Segments)
	}
}

func TestAnswer_NoEvidenceIsNotRelevant(t *testing.T) {
	lm := scripted{keywords: "germany, berlin", answer: "unused"}.provider()
	label, err := newPipeline(t, lm, convref.DefaultConfig()).Answer(context.Background(), parisSample(), docs(), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if label.DocumentRelevant || label.Segments != nil || label.Answer != nil {
		t.Errorf("expected empty not-relevant label, got %+v", label)
	}
	if len(lm.requests) != 1 {
		t.Errorf("expected only the keyword request, got %d", len(lm.requests))
	}
}

func TestAnswer_EmptyEvidenceOverridesGroundTruthRelevancy(t *testing.T) {
	lm := scripted{keywords: "", answer: "unused"}.provider()
	cfg := convref.DefaultConfig()
	cfg.Ablations = convref.AblateRelevancy
	gt := &convref.Label{DocumentRelevant: true, Answer: convref.StringPtr("Paris")}

	label, err := newPipeline(t, lm, cfg).Answer(context.Background(), parisSample(), docs(), gt)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if label.DocumentRelevant {
		t.Error("expected empty evidence to force not relevant")
	}
}

func TestAnswer_GroundTruthRelevancy(t *testing.T) {
	lm := scripted{keywords: "france", answer: "unused"}.provider()
	cfg := convref.DefaultConfig()
	cfg.Ablations = convref.AblateRelevancy

	label, err := newPipeline(t, lm, cfg).Answer(context.Background(), parisSample(), docs(), &convref.Label{DocumentRelevant: false})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if label.DocumentRelevant {
		t.Error("expected ground-truth relevancy to be used")
	}
	if len(lm.requests) != 1 {
		t.Errorf("expected no answer request, got %d requests", len(lm.requests))
	}
}

func TestAnswer_GroundTruthSegments(t *testing.T) {
	lm := scripted{answer: "Lyon is a city in France."}.provider()
	cfg := convref.DefaultConfig()
	cfg.Ablations = convref.AblateSegments
	gt := &convref.Label{DocumentRelevant: true, Segments: []string{"Lyon is a city in France."}}

	label, err := newPipeline(t, lm, cfg).Answer(context.Background(), parisSample(), docs(), gt)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !label.DocumentRelevant || label.AnswerText() != "Lyon is a city in France." {
		t.Errorf("unexpected label %+v", label)
	}
	if len(lm.requests) != 1 {
		t.Errorf("expected keyword extraction to be skipped, got %d requests", len(lm.requests))
	}

	_, err = newPipeline(t, lm, cfg).Answer(context.Background(), parisSample(), docs(), nil)
	if !errors.Is(err, coreerrors.ErrMissingGroundTruth) {
		t.Errorf("expected ErrMissingGroundTruth, got %v", err)
	}
}

func TestAnswer_Strict(t *testing.T) {
	tests := []struct {
		name        string
		affirmative string
		relevant    bool
		requests    int
	}{
		{"confirmed", "YES", true, 3},
		{"rejected", "NO", false, 2},
		{"ambiguous", "I am not sure", false, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lm := scripted{keywords: "france", affirmative: tt.affirmative, answer: "Paris is the capital of France."}.provider()
			cfg := convref.DefaultConfig()
			cfg.Variant = convref.VariantStrict

			label, err := newPipeline(t, lm, cfg).Answer(context.Background(), parisSample(), docs(), nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if label.DocumentRelevant != tt.relevant {
				t.Errorf("expected relevant=%v, got %v", tt.relevant, label.DocumentRelevant)
			}
			if !tt.relevant && (label.Answer != nil || label.Segments != nil) {
				t.Errorf("expected cleared label, got %+v", label)
			}
			if len(lm.requests) != tt.requests {
				t.Fatalf("expected %d requests, got %d", tt.requests, len(lm.requests))
			}

			check := lm.requests[1].Messages
			if len(check) != 2 || check[0].Content != "What is the capital of France?" {
				t.Errorf("expected only the query turn as context, got %+v", check)
			}
			want := "Are the following excerpts relevant for answering the query? Excerpts: <div>" + parisDoc + `</div> Answer "YES" or "NO" only.`
			if check[1].Content != want {
				t.Errorf("unexpected relevance prompt %q", check[1].Content)
			}
		})
	}
}

func TestAnswer_LLMOnly(t *testing.T) {
	tests := []struct {
		name         string
		affirmative  string
		answer       string
		relevant     bool
		wantSegments bool
	}{
		{"verbatim", "YES", "Paris is the capital of France.", true, true},
		{"partial snippet", "YES", "capital of France.", true, true},
		{"invented", "YES", "Marseille is the capital.", true, false},
		{"not relevant", "NO", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lm := scripted{affirmative: tt.affirmative, answer: tt.answer}.provider()
			cfg := convref.DefaultConfig()
			cfg.Variant = convref.VariantLLMOnly

			label, err := newPipeline(t, lm, cfg).Answer(context.Background(), parisSample(), docs(), nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if label.DocumentRelevant != tt.relevant {
				t.Fatalf("expected relevant=%v, got %v", tt.relevant, label.DocumentRelevant)
			}
			if (label.Segments != nil) != tt.wantSegments {
				t.Errorf("expected segments present=%v, got %q", tt.wantSegments, label.Segments)
			}

			check := lm.requests[0].Messages
			if check[0].Content != "You are a helpful assistant. If needed, refer to the following provided document(s) to answer questions. Documents: <div>"+parisDoc+"</div>" {
				t.Errorf("unexpected system prompt %q", check[0].Content)
			}
			if got := check[len(check)-1].Content; got != `Are the document(s) relevant for answering the query? Answer "YES" or "NO" only.` {
				t.Errorf("unexpected relevance question %q", got)
			}
			if tt.relevant {
				sys := lm.requests[1].Messages[0].Content
				if !strings.Contains(sys, "Answer with the single most relevant snippet from the document(s) verbatim and nothing else. Documents: <div>") {
					t.Errorf("unexpected answer prompt %q", sys)
				}
			}
		})
	}
}

func TestAnswer_EntitiesJoinKeywords(t *testing.T) {
	lm := scripted{keywords: "", answer: "Paris is the capital of France."}.provider()
	rec := mockRecognizer{entities: map[string][]string{"What is the capital of France?": {"France"}}}

	label, err := newPipeline(t, lm, convref.DefaultConfig(), convref.WithEntityRecognizer(rec)).
		Answer(context.Background(), parisSample(), docs(), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !label.DocumentRelevant {
		t.Error("expected entity keyword to find evidence")
	}

	cfg := convref.DefaultConfig()
	cfg.UseEntities = false
	label, err = newPipeline(t, scripted{answer: "x"}.provider(), cfg, convref.WithEntityRecognizer(rec)).
		Answer(context.Background(), parisSample(), docs(), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if label.DocumentRelevant {
		t.Error("expected disabled entities to be ignored")
	}
}

func TestAnswerWithState_DialogueEntities(t *testing.T) {
	rec := mockRecognizer{entities: map[string][]string{
		"Tell me about Lyon.": {"Lyon"},
	}}
	cfg := convref.DefaultConfig()
	cfg.UseDialogueEntities = true
	p := newPipeline(t, scripted{keywords: "", answer: "Lyon is a city in France."}.provider(), cfg, convref.WithEntityRecognizer(rec))

	first := convref.Sample{
		DocumentIDs:  []string{"d1"},
		Conversation: []message.Message{message.NewUserMessage("Tell me about Lyon.")},
	}
	_, state, err := p.AnswerWithState(context.Background(), first, docs(), nil, convref.DialogueState{})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if len(state.Entities) != 1 || state.Entities[0] != "lyon" {
		t.Fatalf("expected lyon in dialogue state, got %v", state.Entities)
	}

	second := convref.Sample{
		DocumentIDs: []string{"d1"},
		Conversation: append(message.Clone(first.Conversation),
			message.NewAssistantMessage("It is a city."),
			message.NewUserMessage("Which country is it in?")),
	}
	label, next, err := p.AnswerWithState(context.Background(), second, docs(), nil, state)
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if !label.DocumentRelevant {
		t.Error("expected earlier entity to find evidence")
	}
	if len(next.Entities) != 1 {
		t.Errorf("expected state to carry lyon only, got %v", next.Entities)
	}

	label, err = p.Answer(context.Background(), second, docs(), nil)
	if err != nil {
		t.Fatalf("stateless: %v", err)
	}
	if label.DocumentRelevant {
		t.Error("expected stateless call to find no evidence")
	}
}

func TestAnswer_SummaryTreeTopicsInPrompt(t *testing.T) {
	root := summarytree.NewNode("france, capitals, cities")
	root.AddChild(summarytree.NewNode("paris"))
	root.AddChild(summarytree.NewNode("lyon"))
	forest := summarytree.Forest{"d1": {DocumentID: "d1", Root: root}}

	cfg := convref.DefaultConfig()
	cfg.UseSummaryTrees = true
	lm := scripted{keywords: "", answer: "x"}.provider()
	if _, err := newPipeline(t, lm, cfg, convref.WithSummaryTrees(forest)).Answer(context.Background(), parisSample(), docs(), nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	prompt := lm.requests[0].Messages[0].Content
	if !strings.Contains(prompt, "<div>d1: france, capitals, cities; paris; lyon</div>\nThis is the query") {
		t.Errorf("expected topic map in prompt, got %q", prompt)
	}
}

func TestAnswer_TruncatesDocumentContext(t *testing.T) {
	cfg := convref.DefaultConfig()
	cfg.MaxContextTokens = 10
	lm := scripted{keywords: "lyon", answer: "Lyon is a city in France."}.provider()

	label, err := newPipeline(t, lm, cfg).Answer(context.Background(), parisSample(), docs(), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	prompt := lm.requests[0].Messages[0].Content
	if !strings.Contains(prompt, "<div>Paris is t</div>") {
		t.Errorf("expected truncated context, got %q", prompt)
	}
	if !label.DocumentRelevant {
		t.Error("expected keyword search to use the full document")
	}
}

func TestAnswer_InputErrors(t *testing.T) {
	p := newPipeline(t, scripted{}.provider(), convref.DefaultConfig())

	_, err := p.Answer(context.Background(), convref.Sample{DocumentIDs: []string{"d1"}}, docs(), nil)
	if !errors.Is(err, coreerrors.ErrEmptyConversation) {
		t.Errorf("expected ErrEmptyConversation, got %v", err)
	}

	sample := parisSample()
	sample.DocumentIDs = []string{"d1", "missing"}
	_, err = p.Answer(context.Background(), sample, docs(), nil)
	if !errors.Is(err, coreerrors.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestAnswer_PropagatesProviderErrors(t *testing.T) {
	lm := &mockLLMProvider{generateFn: func(ctx context.Context, req llm.Request) (llm.Response, error) {
		return llm.Response{}, coreerrors.ErrProviderUnavailable
	}}
	metrics := otel.NewInMemoryMetrics()
	p := newPipeline(t, lm, convref.DefaultConfig(), convref.WithPipelineTracer(otel.NewPipelineTracer(nil, metrics)))

	_, err := p.Answer(context.Background(), parisSample(), docs(), nil)
	if !errors.Is(err, coreerrors.ErrProviderUnavailable) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if metrics.CounterValue(otel.MetricAnswerErrors) != 1 {
		t.Error("expected error to be counted")
	}
}

func TestAnswer_DoesNotMutateSample(t *testing.T) {
	sample := parisSample()
	before := message.Clone(sample.Conversation)
	lm := scripted{keywords: "france", affirmative: "YES", answer: "Paris is the capital of France."}.provider()
	cfg := convref.DefaultConfig()
	cfg.Variant = convref.VariantStrict

	if _, err := newPipeline(t, lm, cfg).Answer(context.Background(), sample, docs(), nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for i := range before {
		if sample.Conversation[i] != before[i] {
			t.Errorf("turn %d mutated: %+v", i, sample.Conversation[i])
		}
	}
}

func TestAnswer_TimeTakenAndMetrics(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 1500 * time.Millisecond)
	}
	metrics := otel.NewInMemoryMetrics()
	lm := scripted{keywords: "france", answer: "Paris is the capital of France."}.provider()
	p := newPipeline(t, lm, convref.DefaultConfig(),
		convref.WithClock(clock),
		convref.WithPipelineTracer(otel.NewPipelineTracer(nil, metrics)),
	)

	label, err := p.Answer(context.Background(), parisSample(), docs(), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if label.Seconds() != 1.5 {
		t.Errorf("expected 1.5s, got %v", label.Seconds())
	}
	if metrics.CounterValue(otel.MetricAnswers) != 1 || metrics.CounterValue(otel.MetricRelevant) != 1 {
		t.Error("expected answer and relevant counters")
	}
}

func TestConfig(t *testing.T) {
	cfg := convref.FromPipelineConfig(config.PipelineConfig{
		Strict:                     true,
		UseGroundTruthDocRelevancy: true,
		DisableEntities:            true,
	})
	if cfg.Variant != convref.VariantStrict || !cfg.Ablations.Has(convref.AblateRelevancy) || cfg.Ablations.Has(convref.AblateSegments) {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.UseEntities || cfg.SimilarityThreshold != 0.9 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Mode() != "strict/gt_relevancy" {
		t.Errorf("unexpected mode %q", cfg.Mode())
	}

	if convref.FromPipelineConfig(config.PipelineConfig{LLMOnly: true, Strict: true}).Variant != convref.VariantLLMOnly {
		t.Error("expected llm-only to take precedence")
	}

	bad := convref.DefaultConfig()
	bad.Variant = "eager"
	if _, err := convref.New(scripted{}.provider(), bad); !errors.Is(err, coreerrors.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLabel_Normalize(t *testing.T) {
	l := convref.Label{DocumentRelevant: false, Segments: []string{"x"}, Answer: convref.StringPtr("y")}.Normalize()
	if l.Segments != nil || l.Answer != nil {
		t.Errorf("expected cleared label, got %+v", l)
	}
	kept := convref.Label{DocumentRelevant: true, Answer: convref.StringPtr("y")}.Normalize()
	if kept.AnswerText() != "y" {
		t.Error("expected relevant label to be kept")
	}
}
