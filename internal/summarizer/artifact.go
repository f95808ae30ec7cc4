package summarizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Separator follows every summary block in the artifact.
var Separator = "\n\n" + strings.Repeat("-", 60) + "\n\n"

// FormatArtifact renders summaries as the artifact body.
func FormatArtifact(summaries []string) string {
	var b strings.Builder
	for _, s := range summaries {
		b.WriteString(s)
		b.WriteString(Separator)
	}
	return b.String()
}

// WriteArtifact replaces the file at path with the formatted summaries.
// The content goes to a temporary file first so readers never observe a
// partially written artifact.
func WriteArtifact(path string, summaries []string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".summaries-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(FormatArtifact(summaries)); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace artifact: %w", err)
	}
	return nil
}

// ReadArtifact splits an artifact back into its summary blocks.
func ReadArtifact(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	blocks := strings.Split(string(data), Separator)
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if strings.TrimSpace(b) != "" {
			out = append(out, b)
		}
	}
	return out, nil
}
