package files

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/celerix-dev/celerix-comms/pkg/schema"
)

// Upload is one file of a batch. Size may be -1 when unknown; Open is called
// at most once, by the worker that reads the file.
type Upload struct {
	Name     string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// UploadError reports why one file of a batch was not stored.
type UploadError struct {
	Name string
	Err  error
}

func (e UploadError) Error() string { return fmt.Sprintf("%s: %v", e.Name, e.Err) }
func (e UploadError) Unwrap() error { return e.Err }

// BatchResult lists stored and failed uploads, each in input order.
type BatchResult struct {
	Stored []schema.FileRecord `json:"stored"`
	Failed []UploadError       `json:"-"`
}

type outcome struct {
	rec schema.FileRecord
	err error
}

// PutBatch stores every upload it can. Oversized files are rejected before
// they are opened; the rest are read concurrently and one failure never stops
// the others. Cancelling ctx fails the uploads that have not started yet.
func (a *Archive) PutBatch(ctx context.Context, uploads []Upload) BatchResult {
	results := make([]outcome, len(uploads))

	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, up := range uploads {
		if up.Size > a.maxSize {
			results[i].err = a.reject(up.Name, up.Size)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].err = err
				return nil
			}
			results[i].rec, results[i].err = a.putUpload(up)
			return nil
		})
	}
	_ = g.Wait()

	var br BatchResult
	for i, r := range results {
		if r.err != nil {
			br.Failed = append(br.Failed, UploadError{Name: uploads[i].Name, Err: r.err})
			continue
		}
		br.Stored = append(br.Stored, r.rec)
	}
	return br
}

func (a *Archive) putUpload(up Upload) (schema.FileRecord, error) {
	rc, err := up.Open()
	if err != nil {
		return schema.FileRecord{}, fmt.Errorf("open: %w", err)
	}
	defer rc.Close()

	// One byte past the ceiling is enough for Put to reject it.
	data, err := io.ReadAll(io.LimitReader(rc, a.maxSize+1))
	if err != nil {
		return schema.FileRecord{}, fmt.Errorf("read: %w", err)
	}
	return a.Put(data, up.Name, up.MimeType)
}
