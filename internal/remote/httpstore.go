package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPStore is a Store backed by the dev server's REST API.
//
// Failures carry an ErrorKind: the server's own classification when the
// response body includes one, otherwise a mapping from the HTTP status.
// Transport-level failures classify as unavailable, which keeps them on the
// retry path.
type HTTPStore struct {
	base   string
	client *http.Client
}

// HTTPOption configures an HTTPStore.
type HTTPOption func(*HTTPStore)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPStore) {
		s.client = c
	}
}

// NewHTTPStore creates a store client for the given base URL
// (e.g. "http://localhost:7070").
func NewHTTPStore(baseURL string, opts ...HTTPOption) *HTTPStore {
	s := &HTTPStore{
		base:   baseURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type wireError struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

type arrayOpRequest struct {
	Field   string   `json:"field"`
	Members []string `json:"members"`
}

type listResponse struct {
	Docs []Doc `json:"docs"`
}

// Insert implements Store.
func (s *HTTPStore) Insert(ctx context.Context, doc Doc) error {
	path := fmt.Sprintf("/v1/%s/%s", url.PathEscape(doc.Collection), url.PathEscape(doc.ID))
	return s.do(ctx, http.MethodPut, path, map[string]any{"fields": doc.Fields}, nil, "insert")
}

// Fetch implements Store.
func (s *HTTPStore) Fetch(ctx context.Context, collection, id string) (Doc, error) {
	var doc Doc
	path := fmt.Sprintf("/v1/%s/%s", url.PathEscape(collection), url.PathEscape(id))
	if err := s.do(ctx, http.MethodGet, path, nil, &doc, "fetch"); err != nil {
		return Doc{}, err
	}
	return doc, nil
}

// MergeFields implements Store.
func (s *HTTPStore) MergeFields(ctx context.Context, collection, id string, fields map[string]any) error {
	path := fmt.Sprintf("/v1/%s/%s", url.PathEscape(collection), url.PathEscape(id))
	return s.do(ctx, http.MethodPatch, path, map[string]any{"fields": fields}, nil, "merge_fields")
}

// Delete implements Store.
func (s *HTTPStore) Delete(ctx context.Context, collection, id string) error {
	path := fmt.Sprintf("/v1/%s/%s", url.PathEscape(collection), url.PathEscape(id))
	return s.do(ctx, http.MethodDelete, path, nil, nil, "delete")
}

// ArrayUnion implements Store.
func (s *HTTPStore) ArrayUnion(ctx context.Context, collection, id, field string, members []string) error {
	path := fmt.Sprintf("/v1/%s/%s/array-union", url.PathEscape(collection), url.PathEscape(id))
	return s.do(ctx, http.MethodPost, path, arrayOpRequest{Field: field, Members: members}, nil, "array_union")
}

// ArrayRemove implements Store.
func (s *HTTPStore) ArrayRemove(ctx context.Context, collection, id, field string, members []string) error {
	path := fmt.Sprintf("/v1/%s/%s/array-remove", url.PathEscape(collection), url.PathEscape(id))
	return s.do(ctx, http.MethodPost, path, arrayOpRequest{Field: field, Members: members}, nil, "array_remove")
}

// List implements Store.
func (s *HTTPStore) List(ctx context.Context, collection, orderField string) ([]Doc, error) {
	var resp listResponse
	path := fmt.Sprintf("/v1/%s?order_by=%s", url.PathEscape(collection), url.QueryEscape(orderField))
	if err := s.do(ctx, http.MethodGet, path, nil, &resp, "list"); err != nil {
		return nil, err
	}
	return resp.Docs, nil
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body, out any, op string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return WrapError(KindInvalidArgument, op, "encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.base+path, reader)
	if err != nil {
		return WrapError(KindInvalidArgument, op, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return WrapError(KindUnavailable, op, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return s.responseError(resp, op)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return WrapError(KindInternal, op, "decode response", err)
		}
	}
	return nil
}

func (s *HTTPStore) responseError(resp *http.Response, op string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var we wireError
	if err := json.Unmarshal(data, &we); err == nil && we.Error.Kind != "" {
		return NewError(ErrorKind(we.Error.Kind), op, we.Error.Message)
	}

	kind := kindForStatus(resp.StatusCode)
	return NewError(kind, op, fmt.Sprintf("http %d: %s", resp.StatusCode, bytes.TrimSpace(data)))
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return KindInvalidArgument
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusForbidden:
		return KindPermissionDenied
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusPreconditionFailed:
		return KindFailedPrecondition
	case http.StatusServiceUnavailable:
		return KindUnavailable
	case http.StatusGatewayTimeout:
		return KindDeadlineExceeded
	default:
		if status >= 500 {
			return KindInternal
		}
		return KindUnknown
	}
}
