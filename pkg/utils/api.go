package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %s", e.Status)
}

type API struct {
	client  *http.Client
	baseURL string
	token   string
}

func NewAPI(baseURL string) *API {
	return &API{client: http.DefaultClient, baseURL: baseURL}
}

// WithToken returns a copy of the API that appends token to every request.
func (a *API) WithToken(token string) *API {
	c := *a
	c.token = token
	return &c
}

func (a *API) WithClient(client *http.Client) *API {
	c := *a
	c.client = client
	return &c
}

func (a *API) BaseURL() string {
	return a.baseURL
}

func (a *API) URL(path string, params url.Values) string {
	if a.token != "" {
		if params == nil {
			params = url.Values{}
		}
		params.Set("token", a.token)
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return fmt.Sprintf("%s%s", a.baseURL, path)
}

func (a *API) Get(ctx context.Context, path string, params url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL(path, params), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// Open starts a streaming GET of path. The caller closes the body.
// The returned size is -1 when the server does not announce a length.
func (a *API) Open(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL(path, nil), nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, 0, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return resp.Body, resp.ContentLength, nil
}
