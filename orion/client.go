package orion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	versionPath       = "/version"
	entitiesPath      = "/v2/entities"
	subscriptionsPath = "/v2/subscriptions/"

	// broker bodies are echoed into errors, keep them short
	maxErrorBody = 512
)

// Client is a stateless client of the context broker's NGSI v2 API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient returns a client for the broker at baseURL, e.g.
// "http://localhost:1026". Every request is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.With().Str("component", "orion").Logger(),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
		c.log.Debug().Msgf("%s %s: %s", method, path, payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s %s response: %w", method, path, err)
	}
	return resp.StatusCode, data, nil
}

func brokerError(op string, status int, body []byte) *BrokerError {
	text := string(body)
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}
	return &BrokerError{Op: op, StatusCode: status, Body: text}
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }

// Version requests GET /version and returns the broker's version string.
// A reply with a non-2xx status is reported as *BrokerError, which still
// proves the broker is reachable.
func (c *Client) Version(ctx context.Context) (string, error) {
	status, body, err := c.do(ctx, http.MethodGet, versionPath, nil)
	if err != nil {
		return "", err
	}
	if !isSuccess(status) {
		return "", brokerError("Version", status, body)
	}
	var v struct {
		Orion struct {
			Version string `json:"version"`
		} `json:"orion"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return "", fmt.Errorf("decode version: %w", err)
	}
	return v.Orion.Version, nil
}

// ListEntities returns all entities known to the broker.
func (c *Client) ListEntities(ctx context.Context) ([]Entity, error) {
	status, body, err := c.do(ctx, http.MethodGet, entitiesPath, nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, brokerError("ListEntities", status, body)
	}
	var raw []map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}
	entities := make([]Entity, 0, len(raw))
	for _, r := range raw {
		e, err := decodeEntity(r)
		if err != nil {
			return nil, fmt.Errorf("decode entities: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// CreateEntity creates an entity. The broker rejects duplicate ids, so
// only call it once UpdateAttributes reported ErrEntityNotFound.
func (c *Client) CreateEntity(ctx context.Context, id, entityType string, attrs []Attribute) error {
	body := attributeMap(attrs)
	body["id"] = id
	body["type"] = entityType

	status, resp, err := c.do(ctx, http.MethodPost, entitiesPath, body)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return brokerError("CreateEntity", status, resp)
	}
	c.log.Debug().Msgf("Created entity %s", id)
	return nil
}

// UpdateAttributes replaces attribute values of an existing entity. PUT is
// used since POST would not notify subscribers of unchanged values.
func (c *Client) UpdateAttributes(ctx context.Context, id string, attrs []Attribute) error {
	path := entitiesPath + "/" + url.PathEscape(id) + "/attrs"
	status, resp, err := c.do(ctx, http.MethodPut, path, attributeMap(attrs))
	if err != nil {
		return err
	}
	switch status {
	case http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	default:
		return brokerError("UpdateEntity", status, resp)
	}
}

// ListSubscriptions returns all subscriptions.
func (c *Client) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	status, body, err := c.do(ctx, http.MethodGet, subscriptionsPath, nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, brokerError("ListSubscriptions", status, body)
	}
	var subs []Subscription
	if err := json.Unmarshal(body, &subs); err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}
	return subs, nil
}

// CreateSubscription creates a subscription; success is 201.
func (c *Client) CreateSubscription(ctx context.Context, sub Subscription) error {
	status, resp, err := c.do(ctx, http.MethodPost, subscriptionsPath, sub)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return brokerError("CreateSubscription", status, resp)
	}
	return nil
}
