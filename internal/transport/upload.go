package transport

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sync"

	"proposal-prepper/internal/shared/metrics"
	"proposal-prepper/internal/shared/telemetry"
)

const uploadChunkSize = 32 * 1024

// UploadRecord is the engine's view of an uploaded document.
type UploadRecord struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	FileSize     int64  `json:"fileSize"`
	MimeType     string `json:"mimeType"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	StartedAt    string `json:"startedAt,omitempty"`
	CompletedAt  string `json:"completedAt,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	S3Key        string `json:"s3Key,omitempty"`
}

// UploadWithProgress streams a multipart upload to /api/documents/upload.
// onProgress receives non-decreasing percentages; 100 is reported only after
// the engine accepted the document. Uploads are never retried.
func (c *Client) UploadWithProgress(ctx context.Context, filename string, r io.Reader, size int64, onProgress func(int)) Result[UploadRecord] {
	report := progressReporter(onProgress)
	report(0)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pw.CloseWithError(writeMultipart(mw, filename, r, size, report))
	}()
	defer func() {
		_ = pr.Close()
		<-done
	}()

	uploadCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(uploadCtx, http.MethodPost, c.baseURL+"/api/documents/upload", pr)
	if err != nil {
		return Fail[UploadRecord](CodeValidation, "build request: "+err.Error())
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		aerr := classifyError(err)
		metrics.IncTransportRequest(http.MethodPost, string(aerr.code))
		return Fail[UploadRecord](aerr.code, aerr.msg)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		aerr := classifyError(err)
		return Fail[UploadRecord](aerr.code, aerr.msg)
	}
	data, aerr := decodeBody(resp.StatusCode, body)
	if aerr != nil {
		metrics.IncTransportRequest(http.MethodPost, string(aerr.code))
		telemetry.Warn("transport.upload_failed", map[string]any{
			"filename": filename,
			"code":     aerr.code,
			"error":    aerr.msg,
		})
		return Fail[UploadRecord](aerr.code, aerr.msg)
	}
	metrics.IncTransportRequest(http.MethodPost, "ok")

	var record UploadRecord
	if len(data) > 0 && !isJSONNull(data) {
		if err := json.Unmarshal(data, &record); err != nil {
			return Fail[UploadRecord](CodeParse, "decode upload response: "+err.Error())
		}
	}
	report(100)
	return OK(record)
}

// UploadStatus reads an upload record back from the engine.
func (c *Client) UploadStatus(ctx context.Context, uploadID string, opts ...RequestOption) Result[UploadRecord] {
	return Request[UploadRecord](ctx, c, http.MethodGet, "/api/documents/upload/"+url.PathEscape(uploadID), nil, opts...)
}

func writeMultipart(mw *multipart.Writer, filename string, r io.Reader, size int64, report func(int)) error {
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	buf := make([]byte, uploadChunkSize)
	var sent int64
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := part.Write(buf[:n]); err != nil {
				return err
			}
			sent += int64(n)
			if size > 0 {
				pct := int(sent * 100 / size)
				if pct > 99 {
					pct = 99
				}
				report(pct)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	return mw.Close()
}

// progressReporter drops regressions and duplicate ticks. The writer goroutine
// and the caller both report, so ticks are serialized.
func progressReporter(fn func(int)) func(int) {
	var mu sync.Mutex
	last := -1
	return func(pct int) {
		mu.Lock()
		defer mu.Unlock()
		if fn == nil || pct <= last {
			return
		}
		last = pct
		fn(pct)
	}
}
