package mlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"carbonsense/internal/domain/model"
	"carbonsense/internal/domain/repository"
)

// HTTPModelStore exchanges model bundles with a remote model registry service.
type HTTPModelStore struct {
	endpoint string
	client   *http.Client
}

func NewHTTPModelStore(endpoint string) *HTTPModelStore {
	return &HTTPModelStore{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *HTTPModelStore) Save(ctx context.Context, bundle *model.ModelBundle) error {
	body, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("failed to marshal model bundle: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/models", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create model upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("model service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("model service returned status: %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPModelStore) Load(ctx context.Context) (*model.ModelBundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/models/latest", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create model request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, model.ErrNoBundle
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model service returned status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read model response: %w", err)
	}
	return repository.DecodeBundle(data)
}
