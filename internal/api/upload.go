// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

// =============================================================================
// ATTACHMENT UPLOADS
// =============================================================================

// AttachmentKind selects which upload endpoint a batch goes to. A batch
// must be uniform; the service has separate extraction pipelines for
// documents and images.
type AttachmentKind string

const (
	KindPDF   AttachmentKind = "pdf"
	KindImage AttachmentKind = "image"
)

// Valid reports whether k names a known attachment kind.
func (k AttachmentKind) Valid() bool {
	return k == KindPDF || k == KindImage
}

// UploadFile is one file in an upload batch. Content is read in full
// during the request and closed afterwards.
type UploadFile struct {
	Name    string
	Content io.ReadCloser
}

// Upload sends a uniform batch of attachments for a conversation. The
// service extracts text and returns it; callers feed the extractions
// into subsequent chat requests. All file readers are closed before
// returning, on success and failure alike.
func (c *Client) Upload(ctx context.Context, kind AttachmentKind, serial int, files []UploadFile) (_ *UploadResult, err error) {
	defer func() {
		for _, f := range files {
			f.Content.Close()
		}
	}()

	if !kind.Valid() {
		return nil, fmt.Errorf("upload: unknown attachment kind %q", kind)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("upload: no files")
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		var werr error
		for _, f := range files {
			part, err := mw.CreateFormFile("files", f.Name)
			if err != nil {
				werr = err
				break
			}
			if _, err := io.Copy(part, f.Content); err != nil {
				werr = err
				break
			}
		}
		if werr == nil {
			werr = mw.Close()
		}
		pw.CloseWithError(werr)
	}()

	q := url.Values{"serial_number": {strconv.Itoa(serial)}}
	u := fmt.Sprintf("%s/upload/%s?%s", c.baseURL, kind, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, pr)
	if err != nil {
		return nil, fmt.Errorf("upload: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	c.logRequest(http.MethodPost, "/upload/"+string(kind), resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, serviceError("upload", resp)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("upload: decode response: %w", err)
	}
	return &result, nil
}
