package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/jihoon-dev/portfolio-chat/internal/index"
	"github.com/jihoon-dev/portfolio-chat/internal/policy"
	"github.com/jihoon-dev/portfolio-chat/internal/prompt"
	"github.com/jihoon-dev/portfolio-chat/internal/retrieval"
	"github.com/jihoon-dev/portfolio-chat/provider"
)

// historyLimit bounds the conversation history forwarded to the
// generation service.
const historyLimit = 8

const (
	reasonOutOfScope   = "out_of_scope"
	reasonIndexMissing = "index_missing"
)

// indexMissingMessage is infrastructure unavailability, not policy, so it
// lives here rather than in the policy templates.
var indexMissingMessage = map[policy.Lang]string{
	policy.Korean:  "지식 인덱스가 아직 준비되지 않았어요. 잠시 후 다시 시도해 주세요.",
	policy.English: "The knowledge index has not been built yet. Please try again in a moment.",
}

// ChatMessage is one turn of the incoming conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// ChatHandler runs the answer pipeline for POST /api/chat:
// validate -> detect language -> domain gate -> load index -> embed ->
// retrieve -> score gate -> build prompt -> generate -> stream. Every
// stage past validation terminates through the NDJSON stream; a raw 5xx
// never reaches the client.
type ChatHandler struct {
	Policy    *policy.Policy
	Loader    *index.Loader
	LLM       provider.Provider
	WordDelay time.Duration
	Timeout   time.Duration
	Logger    *log.Logger
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("/chat", h.chat)
}

func (h *ChatHandler) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil || len(req.Messages) == 0 {
		chatOutcomes.WithLabelValues("bad_request").Inc()
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"ok": false, "error": "messages required"})
	}
	query := lastUserMessage(req.Messages)
	if query == "" {
		chatOutcomes.WithLabelValues("bad_request").Inc()
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"ok": false, "error": "no user message"})
	}

	reqID := uuid.NewString()[:8]
	lang := policy.DetectLanguage(query)
	ctx := c.Request().Context()

	st, err := newNDJSONStream(c)
	if err != nil {
		return err
	}

	// DomainGate: reject obviously off-topic questions before spending an
	// embedding call.
	if !h.Policy.InDomain(query) {
		h.Logger.Printf("[%s] out of scope (%s)", reqID, lang)
		return h.finish(st, h.Policy.RefusalMessage(lang), reasonOutOfScope)
	}

	// LoadIndex
	idx, ok := h.Loader.Load()
	if !ok || len(idx.Chunks) == 0 {
		h.Logger.Printf("[%s] index not ready", reqID)
		return h.finish(st, indexMissingMessage[lang], reasonIndexMissing)
	}

	// EmbedQuery
	embedCtx, cancel := context.WithTimeout(ctx, h.timeout())
	vecs, err := h.LLM.Embed(embedCtx, []string{query})
	cancel()
	if err == nil && len(vecs) == 0 {
		err = errors.New("provider returned no vectors")
	}
	if err != nil {
		h.Logger.Printf("[%s] embed failed: %v", reqID, err)
		return h.finish(st, h.Policy.FallbackMessage(lang), string(provider.ReasonOf(err)))
	}

	// Retrieve + ScoreGate: a keyword can match while the nearest indexed
	// content is still irrelevant; low similarity is an out-of-scope
	// outcome, not a failure.
	top := retrieval.TopChunks(idx.Chunks, vecs[0], h.Policy.Retrieval.TopK)
	if len(top) == 0 || top[0].Score < h.Policy.Retrieval.ScoreThreshold {
		h.Logger.Printf("[%s] below score threshold (%d candidates)", reqID, len(top))
		return h.finish(st, h.Policy.RefusalMessage(lang), reasonOutOfScope)
	}

	// BuildPrompt + Generate
	system := prompt.SystemInstruction(h.Policy.Style.MaxSentences)
	user := prompt.UserPrompt(lang, query, top, h.Policy.Style.MaxSentences)
	genCtx, cancel := context.WithTimeout(ctx, h.timeout())
	answer, err := h.LLM.Generate(genCtx, system, user, providerHistory(req.Messages))
	cancel()
	if err != nil {
		h.Logger.Printf("[%s] generate failed: %v", reqID, err)
		return h.finish(st, h.Policy.FallbackMessage(lang), string(provider.ReasonOf(err)))
	}

	// StreamAnswer: word-by-word deltas, then one terminal summary.
	citations := make([]string, 0, len(top))
	for _, s := range top {
		citations = append(citations, s.Chunk.ChunkID)
	}
	for _, word := range strings.Fields(answer) {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		st.delta(word + " ")
		if h.WordDelay > 0 {
			time.Sleep(h.WordDelay)
		}
	}
	st.done(citations, len(top), "")
	chatOutcomes.WithLabelValues("success").Inc()
	return nil
}

// finish terminates the pipeline with a single message delta and the
// reason-coded done frame.
func (h *ChatHandler) finish(st *ndjsonStream, message, reason string) error {
	chatOutcomes.WithLabelValues(reason).Inc()
	st.delta(message)
	st.done(nil, 0, reason)
	return nil
}

func (h *ChatHandler) timeout() time.Duration {
	if h.Timeout > 0 {
		return h.Timeout
	}
	return 15 * time.Second
}

func lastUserMessage(msgs []ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" && strings.TrimSpace(msgs[i].Content) != "" {
			return msgs[i].Content
		}
	}
	return ""
}

// providerHistory forwards at most historyLimit recent messages, mapped to
// the generation service's role vocabulary.
func providerHistory(msgs []ChatMessage) []provider.Message {
	if len(msgs) > historyLimit {
		msgs = msgs[len(msgs)-historyLimit:]
	}
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		out = append(out, provider.Message{Role: role, Content: m.Content})
	}
	return out
}

type deltaFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type doneFrame struct {
	Type          string   `json:"type"`
	Citations     []string `json:"citations"`
	MatchedChunks int      `json:"matchedChunks"`
	Reason        string   `json:"reason,omitempty"`
}

// ndjsonStream frames the response as newline-delimited JSON, one value
// per line, flushed per frame.
type ndjsonStream struct {
	resp    *echo.Response
	flusher http.Flusher
}

func newNDJSONStream(c echo.Context) (*ndjsonStream, error) {
	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	resp.Header().Set(echo.HeaderCacheControl, "no-store")
	resp.WriteHeader(http.StatusOK)
	return &ndjsonStream{resp: resp, flusher: flusher}, nil
}

// send swallows write errors: a failed write means the client went away,
// which must not crash the producer.
func (s *ndjsonStream) send(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if _, err := s.resp.Write(append(data, '\n')); err != nil {
		return
	}
	s.flusher.Flush()
}

func (s *ndjsonStream) delta(text string) {
	s.send(deltaFrame{Type: "delta", Text: text})
}

func (s *ndjsonStream) done(citations []string, matched int, reason string) {
	if citations == nil {
		citations = []string{}
	}
	s.send(doneFrame{Type: "done", Citations: citations, MatchedChunks: matched, Reason: reason})
}
