package photoprism

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
)

// StatusError is returned when PhotoPrism answers with an unexpected status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Body)
}

// IsNotFoundError returns true if the error indicates a 404 Not Found response.
func IsNotFoundError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// doGetJSON performs a GET request and unmarshals the JSON response into the result type.
// The endpoint should be the path after the base API URL (e.g., "albums/123").
func doGetJSON[T any](ctx context.Context, pp *PhotoPrism, endpoint string) (*T, error) {
	return doRequestJSON[T](ctx, pp, http.MethodGet, endpoint, nil, http.StatusOK)
}

// doPostJSON performs a POST request with a JSON body and unmarshals the JSON response.
func doPostJSON[T any](ctx context.Context, pp *PhotoPrism, endpoint string, requestBody any) (*T, error) {
	return doRequestJSON[T](ctx, pp, http.MethodPost, endpoint, requestBody, http.StatusOK, http.StatusCreated)
}

// doRequestJSON performs a request with an optional JSON body and decodes the
// JSON response. Any status outside expectedStatuses is a *StatusError.
func doRequestJSON[T any](ctx context.Context, pp *PhotoPrism, method, endpoint string, requestBody any, expectedStatuses ...int) (*T, error) {
	resp, err := send(ctx, pp, method, endpoint, requestBody, expectedStatuses)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result T
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}
	return &result, nil
}

// doRequestRaw performs a request and discards the response body.
func doRequestRaw(ctx context.Context, pp *PhotoPrism, method, endpoint string, requestBody any, expectedStatuses ...int) error {
	resp, err := send(ctx, pp, method, endpoint, requestBody, expectedStatuses)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func send(ctx context.Context, pp *PhotoPrism, method, endpoint string, requestBody any, expectedStatuses []int) (*http.Response, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		jsonBody, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("could not marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, pp.resolveURL(endpoint), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+pp.token)
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := pp.client.Do(req) //nolint:gosec // URL constructed from validated parsedURL via resolveURL
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	if !slices.Contains(expectedStatuses, resp.StatusCode) {
		defer resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	return resp, nil
}

// download fetches a non-API resource (file or thumbnail) below the API URL.
func (pp *PhotoPrism) download(ctx context.Context, endpoint string) ([]byte, string, error) {
	resp, err := send(ctx, pp, http.MethodGet, endpoint, nil, []int{http.StatusOK})
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("could not read response body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
