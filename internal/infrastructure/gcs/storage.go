package gcs

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"carbonsense/internal/domain/model"
	"carbonsense/internal/domain/repository"

	"cloud.google.com/go/storage"
)

// Client wraps one bucket used for datasets and model bundles.
type Client struct {
	client *storage.Client
	bucket string
}

func NewClient(ctx context.Context, bucket string) (*Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &Client{client: client, bucket: bucket}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) object(name string) *storage.ObjectHandle {
	return c.client.Bucket(c.bucket).Object(name)
}

// DatasetSource reads a telemetry CSV, gzipped when the object name ends in .gz.
type DatasetSource struct {
	client *Client
	object string
}

func NewDatasetSource(client *Client, object string) *DatasetSource {
	return &DatasetSource{client: client, object: object}
}

func (s *DatasetSource) LoadSamples(ctx context.Context) ([]model.TrainingSample, error) {
	rc, err := s.client.object(s.object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS object: %w", err)
	}
	defer rc.Close()
	return readSamples(rc, strings.HasSuffix(s.object, ".gz"))
}

func readSamples(r io.Reader, gzipped bool) ([]model.TrainingSample, error) {
	if gzipped {
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress gzip: %w", err)
		}
		defer gzr.Close()
		r = gzr
	}
	return repository.ParseSamplesCSV(r)
}

// ModelStore keeps the bundle as a single JSON object. GCS finalises an upload only when
// the writer closes, so a failed save leaves the previous bundle in place.
type ModelStore struct {
	client *Client
	object string
}

func NewModelStore(client *Client, object string) *ModelStore {
	return &ModelStore{client: client, object: object}
}

func (s *ModelStore) Save(ctx context.Context, bundle *model.ModelBundle) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.object(s.object).NewWriter(ctx)
	w.ContentType = "application/json"
	if err := json.NewEncoder(w).Encode(bundle); err != nil {
		cancel()
		w.Close()
		return fmt.Errorf("failed to upload model bundle: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalise model bundle upload: %w", err)
	}
	return nil
}

func (s *ModelStore) Load(ctx context.Context) (*model.ModelBundle, error) {
	rc, err := s.client.object(s.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, model.ErrNoBundle
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS object: %w", err)
	}
	defer rc.Close()
	return readBundle(rc)
}

func readBundle(r io.Reader) (*model.ModelBundle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read model bundle: %w", err)
	}
	return repository.DecodeBundle(data)
}
