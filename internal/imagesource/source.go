// Package imagesource turns a job's channel/timestamp/path triple into a
// loaded image.
package imagesource

import (
	"context"
	"fmt"
	"io"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
	"github.com/tendant/simple-detection-pipeline/internal/platform/logger"
	"github.com/tendant/simple-detection-pipeline/internal/storage"
)

// Fetcher downloads remote image bytes
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// URLResolver maps a channel to the remote URL of its current image
type URLResolver func(channel string) string

// Source acquires job images, downloading them when no raw path is given
type Source struct {
	fetcher  Fetcher
	store    storage.Writer
	resolver URLResolver
}

// New creates a Source
func New(fetcher Fetcher, store storage.Writer, resolver URLResolver) *Source {
	return &Source{fetcher: fetcher, store: store, resolver: resolver}
}

// Acquire returns the job's image. With an empty rawPath the image is
// fetched once from the channel's source and written under the derived
// name <channel>_<timestamp>.jpg; fetch failures are returned unwrapped
// so callers can inspect *storage.FetchError.
func (s *Source) Acquire(ctx context.Context, channel string, timestamp int64, rawPath string) (*detection.Image, error) {
	id := detection.NewImageID(channel, timestamp, "jpg")
	if rawPath != "" {
		return detection.NewImage(id, rawPath), nil
	}

	url := s.resolver(channel)
	logger.C(ctx).Debug().Str("image_id", id.String()).Str("url", url).Msg("fetching raw image")

	body, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	br := &bodyReader{r: body}
	path, err := s.store.Put(ctx, id.FileName(), br)
	if br.err != nil {
		return nil, &storage.FetchError{URL: url, Err: br.err}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store raw image: %w", err)
	}

	return detection.NewImage(id, path), nil
}

// bodyReader remembers a failed read so a dropped download is reported
// as a fetch error rather than a storage error
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		b.err = err
	}
	return n, err
}
