// Package remote speaks to the content store API. Only the contracts
// matter to the engine; the store itself is a black box.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"
)

var ErrUnauthorized = errors.New("remote rejected credentials")

// Error carries the status and error payload of a failed remote call.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("remote %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Is(target error) bool {
	if target == ErrUnauthorized {
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// FolderAction is the remote-side counterpart of moving an entity
// folder into or out of the trash zone.
type FolderAction string

const (
	ActionTrash   FolderAction = "trash"
	ActionRestore FolderAction = "restore"
)

type Created struct {
	Identifier int64  `json:"identifier"`
	Slug       string `json:"slug"`
}

type Renamed struct {
	Success bool   `json:"success"`
	OldSlug string `json:"oldSlug"`
	NewSlug string `json:"newSlug"`
}

// Range is a half-open byte range [Start, End) of the content file.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ExportState reports whether the remote wrote the entity's content
// itself recently, in which case a locally observed change is an echo
// and the push must be skipped.
type ExportState struct {
	Skip            bool    `json:"skip"`
	UnchangedRanges []Range `json:"unchangedRanges"`
}

type Client interface {
	CreateEntity(ctx context.Context, collection, title, slug string) (Created, error)
	SetFolderAction(ctx context.Context, identifier int64, action FolderAction) error
	RenameEntity(ctx context.Context, identifier int64, newSlug string) (Renamed, error)
	PushMetadata(ctx context.Context, identifier int64, fields map[string]string) error
	PushContent(ctx context.Context, identifier int64, content []byte) error
	RecentlyExported(ctx context.Context, identifier int64) (ExportState, error)
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewHTTPClient(baseURL, token string, httpClient *http.Client) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

func (c *HTTPClient) CreateEntity(ctx context.Context, collection, title, slug string) (Created, error) {
	var out Created
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return out, errors.New("collection is required")
	}
	body := map[string]string{"title": title, "slug": slug}
	err := c.doJSON(ctx, http.MethodPost, "/v1/collections/"+url.PathEscape(collection)+"/entities", body, &out)
	if err != nil {
		return Created{}, err
	}
	if out.Identifier <= 0 {
		return Created{}, fmt.Errorf("remote returned no identifier for %q", slug)
	}
	return out, nil
}

func (c *HTTPClient) SetFolderAction(ctx context.Context, identifier int64, action FolderAction) error {
	var out struct {
		Success bool `json:"success"`
	}
	body := map[string]string{"action": string(action)}
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/v1/entities/%d/folder-action", identifier), body, &out)
	if err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("folder action %s for entity %d not applied", action, identifier)
	}
	return nil
}

func (c *HTTPClient) RenameEntity(ctx context.Context, identifier int64, newSlug string) (Renamed, error) {
	var out Renamed
	body := map[string]string{"newSlug": newSlug}
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/v1/entities/%d/rename", identifier), body, &out)
	if err != nil {
		return Renamed{}, err
	}
	if !out.Success {
		return Renamed{}, fmt.Errorf("rename of entity %d to %q not applied", identifier, newSlug)
	}
	return out, nil
}

func (c *HTTPClient) PushMetadata(ctx context.Context, identifier int64, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	var out struct {
		Success bool `json:"success"`
	}
	err := c.doJSON(ctx, http.MethodPatch, fmt.Sprintf("/v1/entities/%d/metadata", identifier), fields, &out)
	if err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("metadata update for entity %d not applied", identifier)
	}
	return nil
}

func (c *HTTPClient) PushContent(ctx context.Context, identifier int64, content []byte) error {
	var out struct {
		Success bool `json:"success"`
	}
	body := map[string]string{"content": string(content)}
	err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/v1/entities/%d/content", identifier), body, &out)
	if err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("content push for entity %d not applied", identifier)
	}
	return nil
}

func (c *HTTPClient) RecentlyExported(ctx context.Context, identifier int64) (ExportState, error) {
	var out ExportState
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/v1/entities/%d/export-state", identifier), nil, &out)
	if err != nil {
		return ExportState{}, err
	}
	return out, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, requestPath string, body any, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("X-Correlation-Id", correlationID())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payloadBytes, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payloadBytes) == 0 {
				return nil
			}
			return json.Unmarshal(payloadBytes, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payloadBytes, &errPayload)
		return &Error{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Code,
			Message:    errPayload.Message,
		}
	}
}

func correlationID() string {
	return "pm_" + xid.New().String()
}

func (c *HTTPClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		delta := time.Until(ts)
		if delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
