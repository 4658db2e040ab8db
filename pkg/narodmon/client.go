// Package narodmon is a minimal client for the narodmon.ru sensorsValues API.
package narodmon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigFastest

// ErrNoSensors is returned when the response carries no sensor values.
var ErrNoSensors = errors.New("narodmon: no valid sensors data received")

// Sensor is one entry of the sensorsValues response. Time is unix seconds.
type Sensor struct {
	ID    int64   `json:"id"`
	Type  int     `json:"type"`
	Value float64 `json:"value"`
	Time  int64   `json:"time"`
}

// ReportedAt returns the upstream measurement time.
func (s Sensor) ReportedAt() time.Time {
	return time.Unix(s.Time, 0).UTC()
}

type sensorsValuesResponse struct {
	Sensors []Sensor `json:"sensors"`
	Error   string   `json:"error,omitempty"`
	Errno   int      `json:"errno,omitempty"`
}

type Client struct {
	baseURL    string
	apiKey     string
	uuid       string
	httpClient *http.Client
}

// NewClient creates an API client. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL, apiKey, uuid string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		uuid:       uuid,
		httpClient: httpClient,
	}
}

// SensorsValues fetches current values for the given sensor IDs.
// An empty sensors list in the response is reported as ErrNoSensors.
func (c *Client) SensorsValues(ctx context.Context, sensorIDs ...string) ([]Sensor, error) {
	q := url.Values{}
	q.Set("cmd", "sensorsValues")
	q.Set("sensors", strings.Join(sensorIDs, ","))
	q.Set("uuid", c.uuid)
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensorsValues: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out sensorsValuesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("narodmon error %d: %s", out.Errno, out.Error)
	}
	if len(out.Sensors) == 0 {
		return nil, ErrNoSensors
	}
	return out.Sensors, nil
}
