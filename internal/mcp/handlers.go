package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docqa/internal/document"
	ghclient "github.com/bull/docqa/internal/github"
	"github.com/bull/docqa/internal/index"
	"github.com/bull/docqa/internal/rag"
	"github.com/bull/docqa/internal/summarizer"
)

// makeLoadHandler creates the load_document tool handler.
func makeLoadHandler(session *rag.Session) func(
	context.Context, *mcp.CallToolRequest, LoadDocumentInput,
) (*mcp.CallToolResult, LoadDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input LoadDocumentInput) (
		*mcp.CallToolResult, LoadDocumentOutput, error,
	) {
		if input.Path == "" {
			return nil, LoadDocumentOutput{}, errors.New("path is required")
		}
		if err := session.Load(ctx, input.Path); err != nil {
			return nil, LoadDocumentOutput{}, fmt.Errorf("failed to load document: %w", err)
		}

		st := session.Status()
		return nil, LoadDocumentOutput{
			Source:     st.Source,
			Pages:      st.Pages,
			Segments:   st.Segments,
			Collection: st.Collection,
			State:      st.State.String(),
		}, nil
	}
}

// makeAskHandler creates the ask_question tool handler.
func makeAskHandler(session *rag.Session) func(
	context.Context, *mcp.CallToolRequest, AskQuestionInput,
) (*mcp.CallToolResult, AskQuestionOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskQuestionInput) (
		*mcp.CallToolResult, AskQuestionOutput, error,
	) {
		answer, err := session.Answer(ctx, input.Question)
		if err != nil {
			return nil, AskQuestionOutput{}, err
		}
		return nil, AskQuestionOutput{
			Answer:     answer.Text,
			CitedPages: document.ToDisplay(answer.CitedPages),
		}, nil
	}
}

// makeSourcesHandler creates the get_sources tool handler.
// Retrieval failures are reported in Message with an empty source list.
func makeSourcesHandler(session *rag.Session) func(
	context.Context, *mcp.CallToolRequest, GetSourcesInput,
) (*mcp.CallToolResult, GetSourcesOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetSourcesInput) (
		*mcp.CallToolResult, GetSourcesOutput, error,
	) {
		segments, err := session.Sources(ctx, input.Question)
		if err != nil {
			if errors.Is(err, index.ErrRetrieval) {
				return nil, GetSourcesOutput{Sources: []Source{}, Message: err.Error()}, nil
			}
			return nil, GetSourcesOutput{}, err
		}

		sources := make([]Source, len(segments))
		for i, seg := range segments {
			sources[i] = Source{
				Page:       seg.SourcePage + 1,
				SequenceID: seg.SequenceID,
				Text:       seg.Text,
			}
		}
		return nil, GetSourcesOutput{Sources: sources}, nil
	}
}

// makeSummarizeHandler creates the summarize_document tool handler.
func makeSummarizeHandler(
	session *rag.Session,
	sum *summarizer.Summarizer,
	extractor document.Extractor,
	base summarizer.Options,
) func(context.Context, *mcp.CallToolRequest, SummarizeInput) (*mcp.CallToolResult, SummarizeOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SummarizeInput) (
		*mcp.CallToolResult, SummarizeOutput, error,
	) {
		var doc *document.Document
		if input.Path != "" {
			var err error
			if doc, err = extractor.Extract(ctx, input.Path); err != nil {
				return nil, SummarizeOutput{}, fmt.Errorf("failed to load document: %w", err)
			}
		} else if doc = session.Document(); doc == nil {
			return nil, SummarizeOutput{}, errors.New("no document loaded: call load_document or pass a path")
		}

		opts := base
		if len(input.Pages) > 0 {
			opts.Pages = document.FromDisplay(input.Pages)
			if len(opts.Pages) == 0 {
				return nil, SummarizeOutput{}, fmt.Errorf("pages %v name no page: page numbers start at 1", input.Pages)
			}
		}

		report, err := sum.Summarize(ctx, doc, opts)
		if err != nil {
			return nil, SummarizeOutput{}, fmt.Errorf("summarization failed: %w", err)
		}

		return nil, SummarizeOutput{
			TotalChunks:    report.TotalChunks,
			Succeeded:      report.Succeeded,
			Failed:         report.Failed,
			ElapsedSeconds: report.Elapsed.Seconds(),
			OutputPath:     report.OutputPath,
			Summaries:      report.Summaries,
		}, nil
	}
}

// makeStatusHandler creates the get_session_status tool handler.
func makeStatusHandler(session *rag.Session) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		st := session.Status()
		return nil, StatusOutput{
			SessionID:  st.ID,
			State:      st.State.String(),
			Source:     st.Source,
			Pages:      st.Pages,
			Segments:   st.Segments,
			Collection: st.Collection,
		}, nil
	}
}

// makeListPDFsHandler creates the list_repository_pdfs tool handler.
func makeListPDFsHandler(fetcher *ghclient.Fetcher) func(
	context.Context, *mcp.CallToolRequest, ListPDFsInput,
) (*mcp.CallToolResult, ListPDFsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListPDFsInput) (
		*mcp.CallToolResult, ListPDFsOutput, error,
	) {
		loc, err := ghclient.ParseLocation(input.Location)
		if err != nil {
			return nil, ListPDFsOutput{}, err
		}

		docs, err := fetcher.ListPDFs(ctx, loc)
		if err != nil {
			return nil, ListPDFsOutput{}, fmt.Errorf("github_error: %w", err)
		}

		locations := make([]string, len(docs))
		for i, d := range docs {
			locations[i] = d.String()
		}
		return nil, ListPDFsOutput{Locations: locations, Count: len(locations)}, nil
	}
}
