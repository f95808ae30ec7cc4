package summarizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docqa/internal/chunker"
	"github.com/bull/docqa/internal/document"
	"github.com/bull/docqa/internal/generation"
	"github.com/bull/docqa/internal/metrics"
	"github.com/bull/docqa/internal/testutil"
)

// chapterDoc has one short page per chapter, so each page is exactly one chunk.
func chapterDoc(n int) *document.Document {
	pages := make([]string, n)
	for i := range pages {
		pages[i] = fmt.Sprintf("Chapter %02d explains topic %02d in detail.", i, i)
	}
	return testutil.NewDocument("chapters.pdf", pages...)
}

// chapterModel summarizes a chunk as a bullet naming its chapter and fails
// on the chapters listed in failing.
func chapterModel(failing ...int) *testutil.FakeGenerator {
	fail := make(map[int]bool, len(failing))
	for _, i := range failing {
		fail[i] = true
	}
	return &testutil.FakeGenerator{Reply: func(p string) (string, error) {
		for i := 0; i < 100; i++ {
			if strings.Contains(p, fmt.Sprintf("Chapter %02d ", i)) {
				if fail[i] {
					return "", testutil.ErrUnavailable
				}
				return fmt.Sprintf("- Chapter %02d summary", i), nil
			}
		}
		return "", fmt.Errorf("unexpected prompt")
	}}
}

func newTestSummarizer(t *testing.T, model generation.Model) (*Summarizer, *testutil.RecordingSink) {
	t.Helper()
	sink := &testutil.RecordingSink{}
	out := filepath.Join(t.TempDir(), "summaries.txt")
	return New(model, sink, out, nil), sink
}

func TestSummarize_FailedChunksDoNotAbortBatch(t *testing.T) {
	s, _ := newTestSummarizer(t, chapterModel(3, 7))

	report, err := s.Summarize(context.Background(), chapterDoc(10), Options{})
	require.NoError(t, err)

	assert.Equal(t, 10, report.TotalChunks)
	assert.Equal(t, 8, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, report.TotalChunks, report.Succeeded+report.Failed)

	want := []string{}
	for _, i := range []int{0, 1, 2, 4, 5, 6, 8, 9} {
		want = append(want, fmt.Sprintf("- Chapter %02d summary", i))
	}
	assert.Equal(t, want, report.Summaries)

	require.Len(t, report.Records, 10)
	assert.False(t, report.Records[3].Succeeded)
	assert.ErrorIs(t, report.Records[3].Err, generation.ErrGeneration)
	assert.False(t, report.Records[7].Succeeded)

	blocks, err := ReadArtifact(report.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, want, blocks)
}

func TestSummarize_ConcurrentKeepsOrderAndCounts(t *testing.T) {
	s, _ := newTestSummarizer(t, chapterModel(3, 7))

	report, err := s.Summarize(context.Background(), chapterDoc(10), Options{Concurrency: 4})
	require.NoError(t, err)

	assert.Equal(t, 8, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, report.Summaries, 8)
	assert.Equal(t, "- Chapter 00 summary", report.Summaries[0])
	assert.Equal(t, "- Chapter 04 summary", report.Summaries[3])
	assert.Equal(t, "- Chapter 09 summary", report.Summaries[7])
}

func TestSummarize_OverwritesArtifact(t *testing.T) {
	s, _ := newTestSummarizer(t, chapterModel(3))
	require.NoError(t, os.WriteFile(s.OutputPath(), []byte(strings.Repeat("stale\n", 1000)), 0o644))

	_, err := s.Summarize(context.Background(), chapterDoc(5), Options{})
	require.NoError(t, err)
	first, err := os.ReadFile(s.OutputPath())
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), chapterDoc(5), Options{})
	require.NoError(t, err)
	second, err := os.ReadFile(s.OutputPath())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotContains(t, string(second), "stale")
	assert.Equal(t, 4, strings.Count(string(second), strings.Repeat("-", 60)))
}

func TestSummarize_BlankSummaryCountsAsFailed(t *testing.T) {
	model := &testutil.FakeGenerator{Reply: func(p string) (string, error) {
		if strings.Contains(p, "Chapter 01 ") {
			return "<think>nothing to say</think>\n   \n", nil
		}
		return "- fine", nil
	}}
	s, _ := newTestSummarizer(t, model)

	report, err := s.Summarize(context.Background(), chapterDoc(3), Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalChunks)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.ErrorIs(t, report.Records[1].Err, ErrEmptySummary)
	assert.Len(t, report.Summaries, 2)
}

func TestSummarize_SelectedPages(t *testing.T) {
	model := chapterModel()
	s, _ := newTestSummarizer(t, model)

	report, err := s.Summarize(context.Background(), chapterDoc(5), Options{Pages: []int{3, 1, 99}})
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalChunks)
	assert.Equal(t, []string{"- Chapter 01 summary", "- Chapter 03 summary"}, report.Summaries)
	for _, p := range model.Prompts() {
		assert.NotContains(t, p, "Chapter 00 ")
		assert.NotContains(t, p, "Chapter 02 ")
	}
}

func TestSummarize_EmptySelection(t *testing.T) {
	s, _ := newTestSummarizer(t, chapterModel())

	report, err := s.Summarize(context.Background(), chapterDoc(3), Options{Pages: []int{}})
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalChunks)

	data, err := os.ReadFile(report.OutputPath)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestSummarize_FlattensNestedBullets(t *testing.T) {
	model := &testutil.FakeGenerator{Reply: func(string) (string, error) {
		return "- Refunds\n  - within 30 days\n- Shipping", nil
	}}
	s, _ := newTestSummarizer(t, model)

	report, err := s.Summarize(context.Background(), chapterDoc(1), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"- Refunds\n- within 30 days\n- Shipping"}, report.Summaries)
}

func TestSummarize_UsesSectionPrompt(t *testing.T) {
	model := chapterModel()
	s, _ := newTestSummarizer(t, model)

	_, err := s.Summarize(context.Background(), chapterDoc(1), Options{})
	require.NoError(t, err)

	prompts := model.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Chapter 00 explains topic 00 in detail.")
	assert.Contains(t, prompts[0], "top-level bullets only")
}

func TestSummarize_RecordsMetrics(t *testing.T) {
	s, sink := newTestSummarizer(t, chapterModel(3, 7))

	_, err := s.Summarize(context.Background(), chapterDoc(10), Options{})
	require.NoError(t, err)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, metrics.JobSummary, events[0].Job)
	assert.Equal(t, 10.0, events[0].Gauges["summary_chunks_total"])
	assert.Equal(t, 8.0, events[0].Gauges["summary_chunks_successful"])
	assert.Equal(t, 2.0, events[0].Gauges["summary_chunks_failed"])
	assert.Contains(t, events[0].Gauges, "summary_generation_seconds")
}

func TestSummarize_InvalidOptions(t *testing.T) {
	s, _ := newTestSummarizer(t, chapterModel())

	_, err := s.Summarize(context.Background(), chapterDoc(1), Options{ChunkSize: 100, Overlap: 100})
	assert.ErrorIs(t, err, chunker.ErrInvalidConfig)
}

func TestSummarize_UnwritableArtifact(t *testing.T) {
	out := filepath.Join(t.TempDir(), "missing", "summaries.txt")
	s := New(chapterModel(), nil, out, nil)

	_, err := s.Summarize(context.Background(), chapterDoc(1), Options{})
	assert.Error(t, err)
}

func TestFormatArtifact(t *testing.T) {
	sep := strings.Repeat("-", 60)
	got := FormatArtifact([]string{"- a", "- b"})
	assert.Equal(t, "- a\n\n"+sep+"\n\n- b\n\n"+sep+"\n\n", got)
	assert.Empty(t, FormatArtifact(nil))
}
