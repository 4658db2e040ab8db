// Package tuya is a minimal client for the Tuya cloud proxy used by the
// batch-capable sensor upstream.
package tuya

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

const (
	onlineStatusPath = "/v2.0/cloud/thing/batch"
	deviceStatusPath = "/v1.0/iot-03/devices/status"
)

var json = jsoniter.ConfigFastest

var (
	// ErrNoResult is returned when the proxy answers without success or without a result list.
	ErrNoResult = errors.New("tuya: response has no usable result")
	// ErrNoValue is returned by StatusEntry.Decode for a missing or null value.
	ErrNoValue = errors.New("tuya: status entry has no value")
)

// Response is the envelope returned by the proxy for every request.
type Response struct {
	Success bool    `json:"success"`
	Result  *Result `json:"result,omitempty"`
	Message string  `json:"message,omitempty"`
}

type Result struct {
	Result []Device `json:"result"`
}

// Device is a device entry. Which fields are populated depends on the endpoint.
type Device struct {
	ID         string        `json:"id"`
	Status     []StatusEntry `json:"status,omitempty"`
	IsOnline   *bool         `json:"is_online,omitempty"`
	CustomName string        `json:"custom_name,omitempty"`
}

// StatusEntry is a single data point code and its undecoded value. The value
// type depends on the code: booleans for switches, numbers or numeric strings
// for measurements.
type StatusEntry struct {
	Code  string              `json:"code"`
	Value jsoniter.RawMessage `json:"value"`
}

// Decode unmarshals the entry value into v.
func (s StatusEntry) Decode(v any) error {
	if len(s.Value) == 0 || string(s.Value) == "null" {
		return ErrNoValue
	}
	return json.Unmarshal(s.Value, v)
}

// Online reports the device online flag, false when absent.
func (d Device) Online() bool {
	return d.IsOnline != nil && *d.IsOnline
}

// Find returns the status entry with the given code.
func (d Device) Find(code string) (StatusEntry, bool) {
	for _, s := range d.Status {
		if s.Code == code {
			return s, true
		}
	}
	return StatusEntry{}, false
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a proxy client. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// DeviceOnlineStatus calls the batch thing endpoint that reports is_online per device.
func (c *Client) DeviceOnlineStatus(ctx context.Context, deviceIDs []string) ([]Device, error) {
	return c.request(ctx, onlineStatusPath, deviceIDs)
}

// DeviceStatus calls the batch status endpoint that reports the current data points per device.
func (c *Client) DeviceStatus(ctx context.Context, deviceIDs []string) ([]Device, error) {
	return c.request(ctx, deviceStatusPath, deviceIDs)
}

func (c *Client) request(ctx context.Context, path string, deviceIDs []string) ([]Device, error) {
	if c == nil {
		return nil, fmt.Errorf("tuya client is nil")
	}

	q := url.Values{}
	q.Set("action", "request")
	q.Set("path", path+"?device_ids="+strings.Join(deviceIDs, ","))
	q.Set("method", http.MethodGet)
	endpoint := c.baseURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !out.Success || out.Result == nil || out.Result.Result == nil {
		if out.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrNoResult, out.Message)
		}
		return nil, ErrNoResult
	}

	return out.Result.Result, nil
}
