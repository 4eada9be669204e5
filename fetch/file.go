package fetch

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/IvanBrykalov/imgcache/pipeline"
)

// File serves file:// URIs and absolute paths from FS.
type File struct {
	// FS defaults to the host filesystem.
	FS billy.Filesystem
}

// Create implements pipeline.FetcherFactory.
func (f *File) Create(rc *pipeline.RequestContext) pipeline.Fetcher {
	p, ok := filePath(rc.Request.URI)
	if !ok {
		return nil
	}
	fs := f.FS
	if fs == nil {
		fs = osfs.New("/")
	}
	return &fileFetcher{fs: fs, path: p}
}

func filePath(uri string) (string, bool) {
	switch {
	case strings.HasPrefix(uri, "file://"):
		return strings.TrimPrefix(uri, "file://"), true
	case strings.HasPrefix(uri, "/"):
		return uri, true
	}
	return "", false
}

type fileFetcher struct {
	fs   billy.Filesystem
	path string
}

func (f *fileFetcher) Fetch(ctx context.Context) (pipeline.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.FetchResult{}, err
	}
	if _, err := f.fs.Stat(f.path); err != nil {
		return pipeline.FetchResult{}, err
	}
	return pipeline.FetchResult{
		Source:   fileSource{fs: f.fs, path: f.path},
		DataFrom: pipeline.Local,
		MimeType: mime.TypeByExtension(path.Ext(f.path)),
	}, nil
}

type fileSource struct {
	fs   billy.Filesystem
	path string
}

func (s fileSource) Open() (io.ReadCloser, error) { return s.fs.Open(s.path) }
