package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/jkivela/packwatch/internal/errors"
)

const remoteRequestTimeout = 30 * time.Second

// RemoteStore persists the ledger as a versioned text blob behind an HTTP
// endpoint. The ETag response header is the version token and saves are made
// conditional with If-Match, so a lost update surfaces as a 412.
type RemoteStore struct {
	url    string
	client *http.Client
}

// NewRemoteStore creates a blob-backed ledger store at url. A nil client
// uses a default with a request timeout.
func NewRemoteStore(url string, client *http.Client) *RemoteStore {
	if client == nil {
		client = &http.Client{Timeout: remoteRequestTimeout}
	}
	return &RemoteStore{url: url, client: client}
}

// Load fetches the blob. A 404 yields an empty document with an empty
// version, matching a file that does not exist yet.
func (rs *RemoteStore) Load(ctx context.Context) (Document, Version, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rs.url, http.NoBody)
	if err != nil {
		return nil, "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryNetwork).
			Build()
	}

	resp, err := rs.client.Do(req)
	if err != nil {
		return nil, "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryNetwork).
			Context("url", rs.url).
			Build()
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Document{}, "", nil
	default:
		return nil, "", errors.Newf("ledger blob fetch returned status %d", resp.StatusCode).
			Component("ledger").
			Category(errors.CategoryNetwork).
			Context("url", rs.url).
			Context("status_code", resp.StatusCode).
			Build()
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryNetwork).
			Build()
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryValidation).
			Context("url", rs.url).
			Build()
	}
	return doc, Version(resp.Header.Get("ETag")), nil
}

// Save uploads the document with an If-Match precondition on the version
// last loaded.
func (rs *RemoteStore) Save(ctx context.Context, doc Document, expected Version) (Version, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryValidation).
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, rs.url, bytes.NewReader(data))
	if err != nil {
		return "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryNetwork).
			Build()
	}
	req.Header.Set("Content-Type", "application/json")
	if expected != "" {
		req.Header.Set("If-Match", string(expected))
	} else {
		// Creating a fresh blob; fail if somebody beat us to it.
		req.Header.Set("If-None-Match", "*")
	}

	resp, err := rs.client.Do(req)
	if err != nil {
		return "", errors.New(err).
			Component("ledger").
			Category(errors.CategoryNetwork).
			Context("url", rs.url).
			Build()
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return Version(resp.Header.Get("ETag")), nil
	case http.StatusPreconditionFailed:
		return "", ErrVersionConflict
	default:
		return "", errors.Newf("ledger blob save returned status %d", resp.StatusCode).
			Component("ledger").
			Category(errors.CategoryNetwork).
			Context("url", rs.url).
			Context("status_code", resp.StatusCode).
			Build()
	}
}
