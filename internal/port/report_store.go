package port

import (
	"context"
	"io"
)

type ReportStore interface {
	// Put writes the object and returns a URL the caller can fetch it from
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}
