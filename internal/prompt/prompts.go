package prompt

import "strings"

// NotFoundAnswer is the sentence the model must emit when the context does not
// contain the answer.
const NotFoundAnswer = "I could not find the answer in the document"

// ContextSeparator separates retrieved segments inside the context slot.
const ContextSeparator = "\n\n---\n\n"

// GroundedAnswer places retrieved context ahead of the question and restricts
// the model to that context.
var GroundedAnswer = MustNew("grounded_answer", `You are an AI assistant with access to specific document context.
Answer the question strictly based on the provided context below.
Do not use any external knowledge. If the answer is not in the context, simply say:
`+NotFoundAnswer+`

Context:
{{.context}}

Question: {{.question}}
`, "context", "question")

// SectionSummary asks for a flat bulleted summary of one chunk of text.
var SectionSummary = MustNew("section_summary", `Here is an excerpt from a document:

{{.content}}

Write a clear, concise summary that is simple to understand.
Format the output as a clean Markdown list using top-level bullets only (no nested bullets).
`, "content")

// JoinContext joins segment texts verbatim for the context slot.
func JoinContext(texts []string) string {
	return strings.Join(texts, ContextSeparator)
}
