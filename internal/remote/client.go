// Package remote is the HTTP client for the hosted fuel-record service, a
// row store scoped by owner identity. It supports owner-filtered selects
// (split by the soft-delete flag), insert-returning-row and update-by-id,
// plus a health probe used by the connectivity watcher.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Record is a row as the remote store represents it. The remote keeps
// soft-deleted rows as tombstones so other devices can observe deletions.
type Record struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Date       string    `json:"date"`
	AmountPaid float64   `json:"amount_paid"`
	Odometer   float64   `json:"odometer"`
	FuelFilled float64   `json:"fuel_filled"`
	Station    string    `json:"station"`
	SyncedAt   time.Time `json:"synced_at"`
	IsDeleted  bool      `json:"is_deleted"`
}

// Draft is the body of an insert or full update. The server is authoritative
// for id and synced_at; both come back on the returned row.
type Draft struct {
	OwnerID    string  `json:"owner_id"`
	Date       string  `json:"date"`
	AmountPaid float64 `json:"amount_paid"`
	Odometer   float64 `json:"odometer"`
	FuelFilled float64 `json:"fuel_filled"`
	Station    string  `json:"station"`
	IsDeleted  bool    `json:"is_deleted"`
}

// Error is a failed remote call. The sync engine absorbs these (queueing the
// operation for replay) rather than surfacing them; Status 0 means the
// request never reached the server.
type Error struct {
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client talks to the remote record service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a client for the given base URL. No request timeout is set;
// a hung call stalls only the operation that issued it.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{},
	}
}

// Ping probes the service health endpoint. Callers bound it with a context
// deadline; a non-2xx response or transport error means unreachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return &Error{Op: "ping", Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: "ping", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return &Error{Op: "ping", Status: resp.StatusCode}
	}
	return nil
}

// ListRecords returns the owner's rows, filtered by the soft-delete flag.
func (c *Client) ListRecords(ctx context.Context, ownerID string, deleted bool) ([]Record, error) {
	url := fmt.Sprintf("%s/v1/records?owner=%s&deleted=%t", c.baseURL, ownerID, deleted)
	var records []Record
	if err := c.do(ctx, "list records", http.MethodGet, url, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// InsertRecord creates a row and returns it as stored, including the
// server-assigned id and synced_at.
func (c *Client) InsertRecord(ctx context.Context, d Draft) (*Record, error) {
	var rec Record
	if err := c.do(ctx, "insert record", http.MethodPost, c.baseURL+"/v1/records", d, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateRecord replaces a row's fields and returns the stored row.
func (c *Client) UpdateRecord(ctx context.Context, id string, d Draft) (*Record, error) {
	var rec Record
	if err := c.do(ctx, "update record", http.MethodPatch, c.baseURL+"/v1/records/"+id, d, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SoftDeleteRecord marks a row deleted without removing it, so other devices
// can propagate the deletion.
func (c *Client) SoftDeleteRecord(ctx context.Context, id string) error {
	body := map[string]bool{"is_deleted": true}
	return c.do(ctx, "delete record", http.MethodPatch, c.baseURL+"/v1/records/"+id, body, nil)
}

func (c *Client) do(ctx context.Context, op, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Request-Id", uuid.New().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: op, Status: resp.StatusCode}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}
