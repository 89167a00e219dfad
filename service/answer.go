package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/casevault/backend/config"
	"github.com/casevault/backend/model"
	"github.com/casevault/backend/pkg/logger"
)

// systemPrompt constrains the generation provider to the retrieved evidence.
// It is fixed; the question and context block arrive in the user message.
const systemPrompt = `You are an assistant that answers questions strictly from the evidence snippets supplied in the user message.
Rules:
- Answer only from the supplied snippets. Never invent facts, case names, statutes, dates, or outcomes that are not present in them.
- When the snippets do not contain enough information to answer, respond with exactly: "` + noEvidenceText + `"
- Never provide legal advice, litigation strategy, or outcome predictions. If asked for any of those, decline and refer the user to a licensed attorney.
- Cite snippets by their number, e.g. [Snippet 2], when it helps the user locate the source.`

// Answer outcomes, recorded in the audit trail.
const (
	OutcomeGuardRefused = "guard_refused"
	OutcomeNoEvidence   = "no_evidence"
	OutcomeGenerated    = "generated"
)

// Source is one provenance entry of an answer: the owning evidence document
// and a truncated display snippet.
type Source struct {
	EvidenceID string `json:"evidence_id"`
	Snippet    string `json:"snippet"`
}

// Answer is the orchestrator's result. Every answer, on every path, carries
// the same limitation notice.
type Answer struct {
	Text             string   `json:"answer_text"`
	Sources          []Source `json:"sources"`
	LimitationNotice string   `json:"limitation_notice"`
	Outcome          string   `json:"-"`
}

// questionEmbedder embeds a single question.
type questionEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, int, error)
}

// chunkSearcher runs an ownership-scoped nearest-neighbor search.
type chunkSearcher interface {
	Search(ctx context.Context, ownerID, caseID string, queryVector []float32, limit int) ([]model.SearchHit, error)
}

// generationAPI is the slice of the OpenAI client the answer service needs.
type generationAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// queryAuditor records query attempts without ever failing the caller.
type queryAuditor interface {
	RecordQuery(ctx context.Context, userID, caseID, question, answerSummary, outcome string)
}

// AnswerService ties guard, embedding, vector search and generation into the
// grounded question-answering pipeline.
type AnswerService struct {
	embedder questionEmbedder
	searcher chunkSearcher
	chat     generationAPI
	audit    queryAuditor

	chatModel       string
	temperature     float32
	maxOutputTokens int
	generateTimeout time.Duration
	embedTimeout    time.Duration
	maxSources      int
	snippetLength   int
}

// NewAnswerService creates the orchestrator from configuration.
func NewAnswerService(embedder questionEmbedder, searcher chunkSearcher, chat generationAPI, audit queryAuditor, cfg *config.Config) *AnswerService {
	return &AnswerService{
		embedder:        embedder,
		searcher:        searcher,
		chat:            chat,
		audit:           audit,
		chatModel:       cfg.OpenAI.ChatModel,
		temperature:     cfg.OpenAI.Temperature,
		maxOutputTokens: cfg.OpenAI.MaxOutputTokens,
		generateTimeout: cfg.OpenAI.GenerateTimeout(),
		embedTimeout:    cfg.OpenAI.EmbedTimeout(),
		maxSources:      cfg.Query.MaxSources,
		snippetLength:   cfg.Query.SnippetLength,
	}
}

// Ask answers a question from the caller's own evidence. Two valid non-error
// terminal states exist besides a generated answer: a guard refusal and an
// insufficient-evidence answer. Provider failures surface as DependencyError,
// never as a fabricated answer.
func (s *AnswerService) Ask(ctx context.Context, userID, caseID, question string, maxSources int) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question must not be empty: %w", ErrInputValidation)
	}
	if maxSources <= 0 || maxSources > s.maxSources {
		maxSources = s.maxSources
	}

	// Guard short-circuit: no embedding or generation call is spent on an
	// advice-seeking question, but the attempt is still recorded.
	if IsAdviceLike(question) {
		text, notice := RefusalAnswer()
		answer := &Answer{
			Text:             text,
			Sources:          []Source{},
			LimitationNotice: notice,
			Outcome:          OutcomeGuardRefused,
		}
		s.audit.RecordQuery(ctx, userID, caseID, question, summarize(text), OutcomeGuardRefused)
		logger.Info(ctx, "question refused by advice guard", "case_id", caseID)
		return answer, nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	vector, _, err := s.embedder.EmbedOne(embedCtx, question)
	cancel()
	if err != nil {
		return nil, err
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	hits, err := s.searcher.Search(searchCtx, userID, caseID, vector, maxSources)
	cancel()
	if err != nil {
		return nil, err
	}

	// Zero rows is a valid terminal state, not a failure.
	if len(hits) == 0 {
		answer := &Answer{
			Text:             noEvidenceText,
			Sources:          []Source{},
			LimitationNotice: LimitationNotice,
			Outcome:          OutcomeNoEvidence,
		}
		s.audit.RecordQuery(ctx, userID, caseID, question, summarize(noEvidenceText), OutcomeNoEvidence)
		return answer, nil
	}

	text, err := s.generate(ctx, question, hits)
	if err != nil {
		return nil, err
	}

	// The model reasons over full chunk content; the user sees truncated
	// provenance. The two representations are never conflated.
	sources := make([]Source, len(hits))
	for i, hit := range hits {
		sources[i] = Source{
			EvidenceID: hit.EvidenceID,
			Snippet:    truncate(hit.ChunkContent, s.snippetLength),
		}
	}

	answer := &Answer{
		Text:             text,
		Sources:          sources,
		LimitationNotice: LimitationNotice,
		Outcome:          OutcomeGenerated,
	}
	s.audit.RecordQuery(ctx, userID, caseID, question, summarize(text), OutcomeGenerated)
	return answer, nil
}

// generate builds the context block from full chunk contents and invokes the
// generation provider with the fixed system prompt.
func (s *AnswerService) generate(ctx context.Context, question string, hits []model.SearchHit) (string, error) {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nEvidence snippets:\n")
	for i, hit := range hits {
		fmt.Fprintf(&sb, "\n[Snippet %d] (evidence %s)\n%s\n", i+1, hit.EvidenceID, hit.ChunkContent)
	}

	req := openai.ChatCompletionRequest{
		Model: s.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
		Temperature: s.temperature,
		MaxTokens:   s.maxOutputTokens,
	}

	genCtx, cancel := context.WithTimeout(ctx, s.generateTimeout)
	defer cancel()

	resp, err := s.chat.CreateChatCompletion(genCtx, req)
	if err != nil {
		return "", &DependencyError{Dependency: "generation", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &DependencyError{Dependency: "generation", Err: fmt.Errorf("provider returned no choices")}
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// summarize produces the short answer summary stored on the query row.
func summarize(answer string) string {
	return truncate(answer, 200)
}
