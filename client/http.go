package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// errNotFound marks a 404 so callers can map it to a domain error.
var errNotFound = errors.New("not found")

// postClaim sends envelope bytes via POST /claim and decodes the
// applied event.
func (c *Client) postClaim(envelope []byte, result any) error {
	resp, err := http.Post(
		"http://"+c.nodeAddr+"/claim",
		"application/octet-stream",
		bytes.NewReader(envelope),
	)
	if err != nil {
		return fmt.Errorf("post claim:\n%w", err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode == http.StatusConflict {
		return ErrAlreadyClaimed
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("claim rejected: %s", readErrorMessage(resp.Body, resp.StatusCode))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// httpGet performs a GET request and decodes the JSON response.
func httpGet(url string, result any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// httpGetRaw performs a GET request and returns the raw body.
func httpGetRaw(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s:\n%w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// httpPostJSON performs a POST request with JSON body and decodes the
// JSON response.
func httpPostJSON(url string, body any, result any) error {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body:\n%w", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(jsonBytes))
	if err != nil {
		return fmt.Errorf("POST %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s: status %d", url, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// readErrorMessage extracts the error field from a JSON error reply.
func readErrorMessage(body io.Reader, status int) string {
	var reply struct {
		Error string `json:"error"`
	}

	if err := json.NewDecoder(body).Decode(&reply); err != nil || reply.Error == "" {
		return fmt.Sprintf("status %d", status)
	}

	return reply.Error
}
