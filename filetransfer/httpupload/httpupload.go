// Package httpupload implements elink's FileTransfer port as a plain HTTP
// multipart upload, the way needo37-filabridge's PrusaLinkClient talks to
// a printer's local REST API: a small client with a tuned idle-connection
// transport, one request built per call, wrapped errors at every step.
package httpupload

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	uploadTimeout       = 5 * time.Minute
	maxIdleConns        = 10
	maxIdleConnsPerHost = 2
	idleConnTimeout     = 30 * time.Second
)

// Uploader is a FileTransfer backed by one printer's local HTTP upload
// endpoint.
type Uploader struct {
	baseURL string
	client  *http.Client
}

// New constructs an Uploader targeting host:port. It does not dial
// anything — the first real network use is the first Upload call.
func New(host string, port int) *Uploader {
	return &Uploader{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        maxIdleConns,
				MaxIdleConnsPerHost: maxIdleConnsPerHost,
				IdleConnTimeout:     idleConnTimeout,
			},
		},
	}
}

// Upload streams r as a multipart/form-data "file" field to the
// printer's /upload endpoint, naming it remoteName. size is not used:
// the body is streamed without a Content-Length, and the bytes read from
// r are not checked against it.
func (u *Uploader) Upload(ctx context.Context, remoteName string, r io.Reader, size int64) error {
	pipeReader, pipeWriter := io.Pipe()
	form := multipart.NewWriter(pipeWriter)

	go func() {
		part, err := form.CreateFormFile("file", remoteName)
		if err != nil {
			pipeWriter.CloseWithError(fmt.Errorf("elink: create form file: %w", err))
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pipeWriter.CloseWithError(fmt.Errorf("elink: copy upload body: %w", err))
			return
		}
		if err := form.Close(); err != nil {
			pipeWriter.CloseWithError(fmt.Errorf("elink: close multipart writer: %w", err))
			return
		}
		pipeWriter.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/upload", pipeReader)
	if err != nil {
		return fmt.Errorf("elink: create upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("elink: upload to %s: %w", u.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("elink: upload rejected: %d - %s", resp.StatusCode, string(body))
	}
	return nil
}

// Close idles the underlying transport's connections. Uploader has no
// persistent connection of its own to tear down — each Upload is a
// one-shot HTTP request — so Close only releases pooled idle
// connections.
func (u *Uploader) Close() error {
	u.client.CloseIdleConnections()
	return nil
}
