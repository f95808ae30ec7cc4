// Package mcp exposes a document question-answering session as MCP tools.
package mcp

// Page numbers in every tool input and output are 1-based.

// LoadDocumentInput defines the input parameters for the load_document tool.
type LoadDocumentInput struct {
	// Path is a local PDF path or a github://owner/repo/path.pdf?ref= location.
	Path string `json:"path" jsonschema:"Local PDF path or github://owner/repo/path/file.pdf?ref=branch location"`
}

// LoadDocumentOutput describes the activated document.
type LoadDocumentOutput struct {
	Source     string `json:"source"`
	Pages      int    `json:"pages"`
	Segments   int    `json:"segments"`
	Collection string `json:"collection"`
	State      string `json:"state"`
}

// AskQuestionInput defines the input parameters for the ask_question tool.
type AskQuestionInput struct {
	Question string `json:"question" jsonschema:"The question to answer from the loaded document"`
}

// AskQuestionOutput contains a grounded answer.
type AskQuestionOutput struct {
	Answer string `json:"answer"`
	// CitedPages lists the pages of the retrieved context, ascending.
	CitedPages []int `json:"cited_pages"`
}

// GetSourcesInput defines the input parameters for the get_sources tool.
type GetSourcesInput struct {
	Question string `json:"question" jsonschema:"The question to retrieve context for"`
}

// Source is one retrieved segment.
type Source struct {
	Page       int    `json:"page"`
	SequenceID int    `json:"sequence_id"`
	Text       string `json:"text"`
}

// GetSourcesOutput lists retrieved segments, most relevant first.
type GetSourcesOutput struct {
	Sources []Source `json:"sources"`
	Message string   `json:"message,omitempty"`
}

// SummarizeInput defines the input parameters for the summarize_document tool.
type SummarizeInput struct {
	// Path defaults to the loaded document.
	Path string `json:"path,omitempty" jsonschema:"Document to summarize; defaults to the loaded document"`
	// Pages restricts the summary to these pages.
	Pages []int `json:"pages,omitempty" jsonschema:"Page numbers to summarize, starting at 1; all pages when omitted"`
}

// SummarizeOutput reports a summarization run.
type SummarizeOutput struct {
	TotalChunks    int      `json:"total_chunks"`
	Succeeded      int      `json:"succeeded"`
	Failed         int      `json:"failed"`
	ElapsedSeconds float64  `json:"elapsed_seconds"`
	OutputPath     string   `json:"output_path"`
	Summaries      []string `json:"summaries"`
}

// StatusInput defines the input parameters for the get_session_status tool.
type StatusInput struct{}

// StatusOutput describes the session.
type StatusOutput struct {
	SessionID  string `json:"session_id"`
	State      string `json:"state"`
	Source     string `json:"source,omitempty"`
	Pages      int    `json:"pages"`
	Segments   int    `json:"segments"`
	Collection string `json:"collection,omitempty"`
}

// ListPDFsInput defines the input parameters for the list_repository_pdfs tool.
type ListPDFsInput struct {
	Location string `json:"location" jsonschema:"Repository directory as github://owner/repo/dir?ref=branch"`
}

// ListPDFsOutput contains loadable github:// locations.
type ListPDFsOutput struct {
	Locations []string `json:"locations"`
	Count     int      `json:"count"`
}
