package diskcache

import (
	"log/slog"

	"github.com/go-git/go-billy/v5"

	"github.com/IvanBrykalov/imgcache/cache"
)

// Options configures a disk cache. FS or Dir is required.
type Options struct {
	// Dir is the cache directory on the local filesystem. Ignored when FS is set.
	Dir string
	// FS is the filesystem the cache owns. Tests use memfs.
	FS billy.Filesystem
	// MaxSize is the total byte budget across data and metadata files.
	MaxSize int64
	// AppVersion stamps the cache; changing it invalidates every entry.
	// Zero means 1.
	AppVersion int
	// Name labels log lines (e.g. "result", "download").
	Name    string
	Logger  *slog.Logger
	Metrics cache.Metrics
}
