package diskcache

import (
	"errors"

	platformerrors "github.com/jmgilman/go/errors"
)

var (
	// ErrClosed is returned by editors whose cache was closed.
	ErrClosed = errors.New("diskcache: closed")
	// ErrEditorDone is returned when Commit or Abort is called twice.
	ErrEditorDone = errors.New("diskcache: editor already committed or aborted")
	// ErrNoData is returned by Commit when the data file was never written.
	ErrNoData = errors.New("diskcache: data file not written")
	// ErrInvalidIndex is returned for a file index other than 0 or 1.
	ErrInvalidIndex = errors.New("diskcache: invalid file index")
)

// ioError classifies a filesystem failure as an internal error.
func ioError(err error, op, path string) error {
	return platformerrors.WrapWithContext(err, platformerrors.CodeInternal,
		"disk cache "+op+" failed", map[string]interface{}{"path": path})
}
