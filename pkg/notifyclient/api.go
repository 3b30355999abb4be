package notifyclient

import (
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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	ErrNotFound     = errors.New("notifyclient: notification not found")
	ErrUnauthorized = errors.New("notifyclient: unauthorized")
	ErrForbidden    = errors.New("notifyclient: forbidden")
)

// StatusError is returned for non-2xx answers without a dedicated sentinel.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("notifyclient: status %d: %s", e.Code, e.Message)
}

// Notification mirrors the server record. Unknown fields are ignored.
type Notification struct {
	ID             string    `json:"id"`
	Recipient      string    `json:"recipient"`
	Type           string    `json:"type"`
	Message        string    `json:"message"`
	Read           bool      `json:"read"`
	RelatedTask    *string   `json:"relatedTask,omitempty"`
	RelatedProject *string   `json:"relatedProject,omitempty"`
	Sender         *string   `json:"sender,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type Page struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int64          `json:"unreadCount"`
}

// API talks to the mailbox endpoints on behalf of one token holder.
type API struct {
	base  string
	token string
	hc    *http.Client
}

func NewAPI(base, token string, hc *http.Client) *API {
	if hc == nil {
		hc = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &API{base: strings.TrimRight(base, "/"), token: token, hc: hc}
}

const mailboxPath = "/api/v1/notifications"

func (c *API) List(ctx context.Context, limit, offset int) (*Page, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	q.Set("offset", strconv.Itoa(offset))

	var page Page
	if err := c.do(ctx, http.MethodGet, mailboxPath+"?"+q.Encode(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *API) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, mailboxPath+"/"+url.PathEscape(id)+"/read", nil)
}

func (c *API) MarkAllRead(ctx context.Context) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPut, mailboxPath+"/read-all", &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

func (c *API) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, mailboxPath+"/"+url.PathEscape(id), nil)
}

func (c *API) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode: %w", method, path, err)
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	}

	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if json.Unmarshal(raw, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}
