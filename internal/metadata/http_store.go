package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HTTPStore talks to the optional metadata backend. Its absence is an
// expected deployment configuration: lookups that fail for any reason return
// (nil, nil) so callers fall back to the platform identity, never an error.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPStore) Get(ctx context.Context, requestID uint64) (*Binding, error) {
	endpoint := fmt.Sprintf("%s/payment-request-by-id/%d", s.baseURL, requestID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var binding Binding
	if err := json.NewDecoder(resp.Body).Decode(&binding); err != nil {
		return nil, nil
	}
	if binding.UPIID == "" {
		return nil, nil
	}
	return &binding, nil
}

func (s *HTTPStore) Put(ctx context.Context, binding Binding) error {
	if binding.ID == "" {
		binding.ID = uuid.NewString()
	}
	if binding.CreatedAt.IsZero() {
		binding.CreatedAt = time.Now().UTC()
	}

	body, err := json.Marshal(binding)
	if err != nil {
		return fmt.Errorf("marshal binding: %w", err)
	}

	endpoint := s.baseURL + "/payment-request"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("store binding: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("store binding: http status %d", resp.StatusCode)
	}
	return nil
}
