package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUploadWithProgressReportsTicks(t *testing.T) {
	payload := bytes.Repeat([]byte("p"), 160*1024)
	var received int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/documents/upload" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		received = len(data)
		fmt.Fprintf(w, `{"success":true,"data":{"id":"u1","filename":%q,"fileSize":%d,"status":"completed","progress":100}}`,
			header.Filename, len(data))
	}))
	defer srv.Close()

	var ticks []int
	res := testClient(srv.URL).UploadWithProgress(context.Background(), "proposal.pdf",
		bytes.NewReader(payload), int64(len(payload)), func(p int) { ticks = append(ticks, p) })
	if !res.Success {
		t.Fatalf("expected success, got %#v", res)
	}
	if res.Data.ID != "u1" || res.Data.Filename != "proposal.pdf" {
		t.Fatalf("unexpected record %#v", res.Data)
	}
	if received != len(payload) {
		t.Fatalf("server received %d bytes, want %d", received, len(payload))
	}
	if len(ticks) < 3 {
		t.Fatalf("expected several ticks, got %v", ticks)
	}
	if ticks[0] != 0 || ticks[len(ticks)-1] != 100 {
		t.Fatalf("expected ticks from 0 to 100, got %v", ticks)
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i] < ticks[i-1] {
			t.Fatalf("ticks regressed: %v", ticks)
		}
	}
}

func TestUploadWithProgressFailureSkipsFinalTick(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	var ticks []int
	res := testClient(srv.URL).UploadWithProgress(context.Background(), "big.pdf",
		bytes.NewReader(make([]byte, 1024)), 1024, func(p int) { ticks = append(ticks, p) })
	if res.Success || res.Code != CodeHTTP4xx {
		t.Fatalf("expected HTTP_4XX, got %#v", res)
	}
	for _, tick := range ticks {
		if tick == 100 {
			t.Fatalf("unexpected 100 tick on failure: %v", ticks)
		}
	}
}

func TestUploadStatusReadsRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/documents/upload/u-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"u-1","filename":"p.pdf","status":"completed","progress":100,"s3Key":"uploads/u-1/p.pdf"}}`))
	}))
	defer srv.Close()

	res := testClient(srv.URL).UploadStatus(context.Background(), "u-1")
	if !res.Success || res.Data.S3Key != "uploads/u-1/p.pdf" || res.Data.Progress != 100 {
		t.Fatalf("unexpected result %#v", res)
	}
	missing := testClient(srv.URL).UploadStatus(context.Background(), "nope")
	if missing.Success || missing.Code != CodeHTTP4xx {
		t.Fatalf("expected HTTP_4XX, got %#v", missing)
	}
}
