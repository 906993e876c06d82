// Package prompt assembles the system instruction and user prompt sent to
// the generation service. Everything here is a pure function: no I/O, no
// side effects.
package prompt

import (
	"fmt"
	"strings"

	"github.com/jihoon-dev/portfolio-chat/internal/policy"
	"github.com/jihoon-dev/portfolio-chat/internal/retrieval"
)

// SystemInstruction is fixed text parameterized only by the sentence cap.
func SystemInstruction(maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	return fmt.Sprintf(`You are the assistant on a personal portfolio website, answering questions about its owner.
Answer using only the provided context. If the context does not contain the answer, say you do not know instead of guessing.
Politely refuse questions unrelated to the owner's resume, experience, projects or skills.
Keep the answer within %d sentences.`, maxSentences)
}

const koTemplate = `아래 컨텍스트만 사용해서 질문에 답하세요. 컨텍스트에 없는 내용은 지어내지 말고 모른다고 답하세요. 답변은 %d문장 이내로 작성하세요.

%s
질문: %s`

const enTemplate = `Answer the question using only the context below. If something is not in the context, say you do not know instead of making it up. Keep the answer within %d sentences.

%s
Question: %s`

// UserPrompt renders the language-specific template: an instruction line,
// the retrieved chunks each labeled with id/title/section/score, a blank
// separator and the original question. The two templates carry the same
// constraints, not just translated boilerplate.
func UserPrompt(lang policy.Lang, query string, scored []retrieval.Scored, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	var b strings.Builder
	for _, s := range scored {
		fmt.Fprintf(&b, "[%s] title=%s section=%s score=%.3f\n%s\n",
			s.Chunk.ChunkID, s.Chunk.Metadata.Title, s.Chunk.Metadata.Section, s.Score, s.Chunk.Text)
	}
	tmpl := koTemplate
	if lang == policy.English {
		tmpl = enTemplate
	}
	return fmt.Sprintf(tmpl, maxSentences, b.String(), query)
}
