// Package backend is the HTTP client for the workflow service that computes
// stale content and receives selections and deliveries.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BattermanZ/StaleFlix/internal/config"
	"github.com/BattermanZ/StaleFlix/internal/content"
)

// SubmitError reports a failed selection, push or delivery call. Selection
// state is never changed by a failed submit.
type SubmitError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *SubmitError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Endpoint, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// Client talks to the backend endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	endpoints  config.Endpoints
	httpClient *http.Client
}

// New creates a backend client from config.
func New(cfg config.Backend) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		endpoints:  cfg.Endpoints,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type messageResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
}

type submitSelectionRequest struct {
	SelectedItems []string `json:"selectedItems"`
}

type deliveryQueueRequest struct {
	SelectedContent []content.Record `json:"selectedContent"`
}

type mailingListRequest struct {
	Message         string           `json:"message"`
	SelectedContent []content.Record `json:"selectedContent"`
	AssetFolder     string           `json:"assetFolder"`
}

type mediaCollectionsRequest struct {
	SelectedContent []content.Record `json:"selectedContent"`
	AssetFolder     string           `json:"assetFolder"`
}

// FetchSnapshot queries the stale content endpoint.
func (c *Client) FetchSnapshot(ctx context.Context, forceRefresh bool) (*content.Snapshot, error) {
	params := url.Values{"forceRefresh": {strconv.FormatBool(forceRefresh)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(c.endpoints.StaleContent)+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stale content query failed: %s - %s", resp.Status, snippet(resp.Body))
	}

	var snap content.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	log.Printf("Fetched %d stale records (forceRefresh=%t)", len(snap.Content), forceRefresh)
	return &snap, nil
}

// SubmitSelection sends the selected ids and returns the backend's message.
func (c *Client) SubmitSelection(ctx context.Context, ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	return c.post(ctx, c.endpoints.SubmitSelection, submitSelectionRequest{SelectedItems: ids})
}

// PushToDeliveryQueue sends the selected records to the delivery queue.
func (c *Client) PushToDeliveryQueue(ctx context.Context, records []content.Record) (string, error) {
	return c.post(ctx, c.endpoints.DeliveryQueue, deliveryQueueRequest{SelectedContent: nonNil(records)})
}

// SendToMailingList hands the newsletter content to the mailing-list service.
func (c *Client) SendToMailingList(ctx context.Context, message string, records []content.Record, assetFolder string) (string, error) {
	return c.post(ctx, c.endpoints.MailingList, mailingListRequest{
		Message:         message,
		SelectedContent: nonNil(records),
		AssetFolder:     assetFolder,
	})
}

// SendToMediaCollections asks the media server to build collections from
// the selected records.
func (c *Client) SendToMediaCollections(ctx context.Context, records []content.Record, assetFolder string) (string, error) {
	return c.post(ctx, c.endpoints.MediaCollections, mediaCollectionsRequest{
		SelectedContent: nonNil(records),
		AssetFolder:     assetFolder,
	})
}

// post sends body as JSON. Any non-2xx status is a failure; the response
// message is optional.
func (c *Client) post(ctx context.Context, endpoint string, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &SubmitError{Endpoint: endpoint, Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(endpoint), bytes.NewReader(payload))
	if err != nil {
		return "", &SubmitError{Endpoint: endpoint, Err: fmt.Errorf("create request: %w", err)}
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &SubmitError{Endpoint: endpoint, Err: fmt.Errorf("backend request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &SubmitError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("%s - %s", resp.Status, snippet(resp.Body)),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &SubmitError{Endpoint: endpoint, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var msg messageResponse
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &msg); err != nil {
			// Some workflows answer with plain text.
			msg.Message = strings.TrimSpace(string(data))
		}
	}
	if msg.Status == "error" {
		return "", &SubmitError{Endpoint: endpoint, Status: resp.StatusCode, Err: fmt.Errorf("backend reported error: %s", msg.Message)}
	}

	log.Printf("POST %s ok: %s", endpoint, msg.Message)
	return msg.Message, nil
}

func (c *Client) url(endpoint string) string {
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "staleflix")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
}

func snippet(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(body))
}

func nonNil(records []content.Record) []content.Record {
	if records == nil {
		return []content.Record{}
	}
	return records
}
