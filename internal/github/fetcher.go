package github

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"
)

// Scheme prefixes remote document locations: github://owner/repo/path/file.pdf?ref=main
const Scheme = "github://"

// Location identifies a file or directory in a repository.
type Location struct {
	Owner string
	Repo  string
	Path  string
	Ref   string // Branch, tag or commit; empty means the default branch
}

// String formats the location as a github:// URI.
func (l Location) String() string {
	s := Scheme + path.Join(l.Owner, l.Repo, l.Path)
	if l.Ref != "" {
		s += "?ref=" + url.QueryEscape(l.Ref)
	}
	return s
}

// IsRemote reports whether p uses the github:// scheme.
func IsRemote(p string) bool {
	return strings.HasPrefix(p, Scheme)
}

// ParseLocation parses a github:// URI.
func ParseLocation(uri string) (Location, error) {
	if !IsRemote(uri) {
		return Location{}, fmt.Errorf("not a %s location: %s", Scheme, uri)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("parse %s: %w", uri, err)
	}

	rest := strings.Trim(u.Path, "/")
	if u.Host == "" || rest == "" {
		return Location{}, fmt.Errorf("location %s needs owner, repository and path", uri)
	}
	repo, filePath, _ := strings.Cut(rest, "/")

	return Location{
		Owner: u.Host,
		Repo:  repo,
		Path:  filePath,
		Ref:   u.Query().Get("ref"),
	}, nil
}

// Fetcher downloads files from GitHub repositories
type Fetcher struct {
	client *Client
}

// NewFetcher creates a new document fetcher
func NewFetcher(client *Client) *Fetcher {
	return &Fetcher{client: client}
}

// Download writes the file at loc to a new temporary file in dir and returns
// its path. The caller removes the file.
func (f *Fetcher) Download(ctx context.Context, loc Location, dir string) (string, error) {
	if loc.Path == "" {
		return "", fmt.Errorf("location %s has no file path", loc)
	}

	var opts *github.RepositoryContentGetOptions
	if loc.Ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: loc.Ref}
	}
	body, _, err := f.client.Repositories.DownloadContents(ctx, loc.Owner, loc.Repo, loc.Path, opts)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", loc, err)
	}
	defer body.Close()

	out, err := os.CreateTemp(dir, "docqa-*"+path.Ext(loc.Path))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("failed to download %s: %w", loc, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

// ListPDFs recursively lists the PDF files below the directory at loc.
// Returned locations carry loc's ref.
func (f *Fetcher) ListPDFs(ctx context.Context, loc Location) ([]Location, error) {
	var opts *github.RepositoryContentGetOptions
	if loc.Ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: loc.Ref}
	}
	return f.listRecursive(ctx, loc, loc.Path, opts)
}

// listRecursive traverses directories to find all .pdf files
func (f *Fetcher) listRecursive(ctx context.Context, loc Location, dir string, opts *github.RepositoryContentGetOptions) ([]Location, error) {
	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, loc.Owner, loc.Repo, dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", dir, err)
	}

	var docs []Location
	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}
		itemPath := path.Join(dir, *item.Name)

		switch *item.Type {
		case "file":
			if strings.EqualFold(path.Ext(*item.Name), ".pdf") {
				docs = append(docs, Location{Owner: loc.Owner, Repo: loc.Repo, Path: itemPath, Ref: loc.Ref})
			}

		case "dir":
			subDocs, err := f.listRecursive(ctx, loc, itemPath, opts)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}

	return docs, nil
}

// LatestCommitSHA retrieves the SHA of the most recent commit touching loc.
func (f *Fetcher) LatestCommitSHA(ctx context.Context, loc Location) (string, error) {
	commits, _, err := f.client.Repositories.ListCommits(
		ctx,
		loc.Owner,
		loc.Repo,
		&github.CommitsListOptions{
			SHA:  loc.Ref,
			Path: loc.Path,
			ListOptions: github.ListOptions{
				PerPage: 1,
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}

	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for path %s", loc.Path)
	}

	if commits[0].SHA == nil {
		return "", fmt.Errorf("commit SHA is nil")
	}

	return *commits[0].SHA, nil
}
