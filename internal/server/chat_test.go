package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jihoon-dev/portfolio-chat/internal/index"
	"github.com/jihoon-dev/portfolio-chat/internal/policy"
	"github.com/jihoon-dev/portfolio-chat/provider"
)

type fakeLLM struct {
	embedFn    func(ctx context.Context, texts []string) ([][]float32, error)
	generateFn func(ctx context.Context, system, prompt string, history []provider.Message) (string, error)
}

func (f *fakeLLM) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.embedFn == nil {
		panic("unexpected Embed call")
	}
	return f.embedFn(ctx, texts)
}

func (f *fakeLLM) Generate(ctx context.Context, system, prompt string, history []provider.Message) (string, error) {
	if f.generateFn == nil {
		panic("unexpected Generate call")
	}
	return f.generateFn(ctx, system, prompt, history)
}

func testPolicy() *policy.Policy {
	return &policy.Policy{
		AllowedTopics: policy.Topics{
			Ko: []string{"이력", "경력", "프로젝트"},
			En: []string{"resume", "project", "career"},
		},
		Refusal: policy.Messages{
			Ko: "포트폴리오 관련 질문만 답할 수 있어요.",
			En: "I can only answer portfolio questions.",
		},
		Fallback: policy.Messages{
			Ko: "지금은 답변을 만들 수 없어요.",
			En: "I cannot produce an answer right now.",
		},
		Style:     policy.Style{MaxSentences: 5},
		Retrieval: policy.Retrieval{ScoreThreshold: 0.3, TopK: 4},
	}
}

func writeTestIndex(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.json")
	idx := &index.Index{
		Version:        1,
		EmbeddingModel: "text-embedding-3-small",
		CreatedAt:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Chunks: []index.Chunk{
			{
				ChunkID:  "resume-c0",
				DocID:    "resume",
				Text:     "백엔드 개발자로 5년 일했습니다.",
				Vector:   []float32{1, 0},
				Metadata: index.ChunkMetadata{Title: "이력", Section: "experience", Lang: "ko", Priority: 2},
			},
			{
				ChunkID:  "projects-c0",
				DocID:    "projects",
				Text:     "브라우저 도구를 여러 개 만들었습니다.",
				Vector:   []float32{0.9, 0.1},
				Metadata: index.ChunkMetadata{Title: "프로젝트", Section: "project", Lang: "ko", Priority: 1},
			},
		},
	}
	if err := index.WriteIndex(idx, path); err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}
	return path
}

func newTestHandler(indexPath string, llm provider.Provider) *ChatHandler {
	return &ChatHandler{
		Policy: testPolicy(),
		Loader: index.NewLoader(indexPath, nil),
		LLM:    llm,
		Logger: log.New(io.Discard, "", 0),
	}
}

func performChat(t *testing.T, h *ChatHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.chat(e.NewContext(req, rec)); err != nil {
		t.Fatalf("chat: %v", err)
	}
	return rec
}

type frame struct {
	Type          string   `json:"type"`
	Text          string   `json:"text"`
	Citations     []string `json:"citations"`
	MatchedChunks int      `json:"matchedChunks"`
	Reason        string   `json:"reason"`
}

func decodeFrames(t *testing.T, rec *httptest.ResponseRecorder) []frame {
	t.Helper()
	var frames []frame
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		var f frame
		if err := json.Unmarshal(sc.Bytes(), &f); err != nil {
			t.Fatalf("bad NDJSON line %q: %v", sc.Text(), err)
		}
		frames = append(frames, f)
	}
	if len(frames) == 0 {
		t.Fatalf("no frames in response")
	}
	last := frames[len(frames)-1]
	if last.Type != "done" {
		t.Fatalf("stream does not end with a done frame: %+v", last)
	}
	for _, f := range frames[:len(frames)-1] {
		if f.Type != "delta" {
			t.Fatalf("unexpected frame before done: %+v", f)
		}
	}
	return frames
}

func joinDeltas(frames []frame) string {
	var b strings.Builder
	for _, f := range frames[:len(frames)-1] {
		b.WriteString(f.Text)
	}
	return b.String()
}

const inScopeBody = `{"messages": [{"role": "user", "content": "경력에 대해 알려줘"}]}`

func TestChatAnswersInScopeQuestion(t *testing.T) {
	answer := "백엔드 개발자로 5년 일했습니다."
	var gotSystem, gotPrompt string
	llm := &fakeLLM{
		embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
			if len(texts) != 1 || texts[0] != "경력에 대해 알려줘" {
				t.Errorf("unexpected embed input: %v", texts)
			}
			return [][]float32{{1, 0}}, nil
		},
		generateFn: func(ctx context.Context, system, prompt string, history []provider.Message) (string, error) {
			gotSystem, gotPrompt = system, prompt
			return answer, nil
		},
	}
	rec := performChat(t, newTestHandler(writeTestIndex(t), llm), inScopeBody)

	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/x-ndjson" {
		t.Fatalf("wrong content type %q", ct)
	}
	if cc := rec.Header().Get(echo.HeaderCacheControl); cc != "no-store" {
		t.Fatalf("wrong cache control %q", cc)
	}

	frames := decodeFrames(t, rec)
	if got := strings.TrimSpace(joinDeltas(frames)); got != answer {
		t.Fatalf("deltas join to %q, want %q", got, answer)
	}
	done := frames[len(frames)-1]
	if done.Reason != "" {
		t.Fatalf("unexpected reason %q", done.Reason)
	}
	if done.MatchedChunks != 2 {
		t.Fatalf("matchedChunks = %d, want 2", done.MatchedChunks)
	}
	if len(done.Citations) != 2 || done.Citations[0] != "resume-c0" || done.Citations[1] != "projects-c0" {
		t.Fatalf("citations = %v", done.Citations)
	}
	if !strings.Contains(gotSystem, "portfolio") {
		t.Fatalf("system instruction missing: %q", gotSystem)
	}
	if !strings.Contains(gotPrompt, "resume-c0") || !strings.Contains(gotPrompt, "질문: 경력에 대해 알려줘") {
		t.Fatalf("user prompt not assembled: %q", gotPrompt)
	}
}

func TestChatRefusesOutOfScope(t *testing.T) {
	// the LLM must never be called for an off-topic question
	h := newTestHandler(writeTestIndex(t), &fakeLLM{})
	rec := performChat(t, h, `{"messages": [{"role": "user", "content": "오늘 날씨 어때?"}]}`)

	frames := decodeFrames(t, rec)
	if len(frames) != 2 {
		t.Fatalf("expected one delta and one done, got %d frames", len(frames))
	}
	if frames[0].Text != h.Policy.Refusal.Ko {
		t.Fatalf("delta %q is not the refusal message", frames[0].Text)
	}
	done := frames[1]
	if done.Reason != "out_of_scope" || done.MatchedChunks != 0 || len(done.Citations) != 0 {
		t.Fatalf("unexpected done frame: %+v", done)
	}
	if done.Citations == nil {
		t.Fatalf("citations must be an empty array, not null")
	}
}

func TestChatRefusesInEnglish(t *testing.T) {
	h := newTestHandler(writeTestIndex(t), &fakeLLM{})
	rec := performChat(t, h, `{"messages": [{"role": "user", "content": "how is the weather today"}]}`)
	frames := decodeFrames(t, rec)
	if frames[0].Text != h.Policy.Refusal.En {
		t.Fatalf("expected english refusal, got %q", frames[0].Text)
	}
}

func TestChatIndexMissing(t *testing.T) {
	h := newTestHandler(filepath.Join(t.TempDir(), "absent.json"), &fakeLLM{})
	rec := performChat(t, h, inScopeBody)

	frames := decodeFrames(t, rec)
	if frames[0].Text != indexMissingMessage[policy.Korean] {
		t.Fatalf("unexpected message %q", frames[0].Text)
	}
	done := frames[len(frames)-1]
	if done.Reason != "index_missing" || done.MatchedChunks != 0 {
		t.Fatalf("unexpected done frame: %+v", done)
	}
}

func TestChatMissingKey(t *testing.T) {
	llm := &fakeLLM{
		embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, &provider.Error{Reason: provider.ReasonMissingKey}
		},
	}
	h := newTestHandler(writeTestIndex(t), llm)
	rec := performChat(t, h, inScopeBody)

	frames := decodeFrames(t, rec)
	if frames[0].Text != h.Policy.Fallback.Ko {
		t.Fatalf("expected fallback message, got %q", frames[0].Text)
	}
	if done := frames[len(frames)-1]; done.Reason != "missing_key" {
		t.Fatalf("reason = %q, want missing_key", done.Reason)
	}
}

func TestChatUpstreamGenerateFailure(t *testing.T) {
	llm := &fakeLLM{
		embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1, 0}}, nil
		},
		generateFn: func(ctx context.Context, system, prompt string, history []provider.Message) (string, error) {
			return "", &provider.Error{Reason: provider.ReasonUpstream}
		},
	}
	h := newTestHandler(writeTestIndex(t), llm)
	rec := performChat(t, h, inScopeBody)

	frames := decodeFrames(t, rec)
	if frames[0].Text != h.Policy.Fallback.Ko {
		t.Fatalf("expected fallback message, got %q", frames[0].Text)
	}
	if done := frames[len(frames)-1]; done.Reason != "upstream_error" {
		t.Fatalf("reason = %q, want upstream_error", done.Reason)
	}
}

func TestChatScoreGate(t *testing.T) {
	// keyword matches but the nearest indexed content is orthogonal
	llm := &fakeLLM{
		embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{0, 1}}, nil
		},
	}
	h := newTestHandler(writeTestIndex(t), llm)
	rec := performChat(t, h, inScopeBody)

	frames := decodeFrames(t, rec)
	if frames[0].Text != h.Policy.Refusal.Ko {
		t.Fatalf("expected refusal, got %q", frames[0].Text)
	}
	if done := frames[len(frames)-1]; done.Reason != "out_of_scope" {
		t.Fatalf("reason = %q, want out_of_scope", done.Reason)
	}
}

func TestChatValidation(t *testing.T) {
	h := newTestHandler(writeTestIndex(t), &fakeLLM{})
	for _, body := range []string{
		`{"messages": []}`,
		`{}`,
		`{"messages": [{"role": "assistant", "content": "hi"}]}`,
		`{"messages": [{"role": "user", "content": "   "}]}`,
	} {
		rec := performChat(t, h, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status %d, want 400", body, rec.Code)
		}
		var resp struct {
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("body %s: bad error payload: %v", body, err)
		}
		if resp.OK || resp.Error == "" {
			t.Fatalf("body %s: unexpected payload %+v", body, resp)
		}
	}
}

func TestChatHistoryBounded(t *testing.T) {
	var gotHistory []provider.Message
	llm := &fakeLLM{
		embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1, 0}}, nil
		},
		generateFn: func(ctx context.Context, system, prompt string, history []provider.Message) (string, error) {
			gotHistory = history
			return "ok", nil
		},
	}
	var msgs []string
	for i := 0; i < 11; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msgs = append(msgs, `{"role": "`+role+`", "content": "turn"}`)
	}
	msgs = append(msgs, `{"role": "user", "content": "이력을 알려줘"}`)
	body := `{"messages": [` + strings.Join(msgs, ",") + `]}`

	performChat(t, newTestHandler(writeTestIndex(t), llm), body)
	if len(gotHistory) != historyLimit {
		t.Fatalf("history length %d, want %d", len(gotHistory), historyLimit)
	}
	for _, m := range gotHistory {
		if m.Role != "user" && m.Role != "assistant" {
			t.Fatalf("unexpected role %q in history", m.Role)
		}
	}
}
