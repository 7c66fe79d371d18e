// UgFlix Gateway - Subscription Access and Payment Confirmation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ugflix-gateway

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var jsonBody = `{"status":"success","data":` + strings.Repeat(`"test data",`, 200) + `"end"}`

func jsonHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", "2000")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(jsonBody))
}

func TestCompression(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		method   string
		header   map[string]string
		wantGzip bool
	}{
		{"gzip accepted", http.MethodGet, map[string]string{"Accept-Encoding": "gzip"}, true},
		{"gzip among others", http.MethodGet, map[string]string{"Accept-Encoding": "deflate, gzip;q=0.8, br"}, true},
		{"gzip refused", http.MethodGet, map[string]string{"Accept-Encoding": "gzip;q=0"}, false},
		{"no accept header", http.MethodGet, nil, false},
		{"only br", http.MethodGet, map[string]string{"Accept-Encoding": "br"}, false},
		{"websocket upgrade", http.MethodGet, map[string]string{"Accept-Encoding": "gzip", "Upgrade": "websocket"}, false},
		{"head request", http.MethodHead, map[string]string{"Accept-Encoding": "gzip"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(tt.method, "/api/v1/plans", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			Compression(http.HandlerFunc(jsonHandler)).ServeHTTP(rec, req)

			gzipped := rec.Header().Get("Content-Encoding") == "gzip"
			if gzipped != tt.wantGzip {
				t.Fatalf("gzipped = %v, want %v", gzipped, tt.wantGzip)
			}
			if rec.Header().Get("Vary") != "Accept-Encoding" {
				t.Errorf("Vary = %q", rec.Header().Get("Vary"))
			}
			if !gzipped {
				return
			}
			if rec.Header().Get("Content-Length") != "" {
				t.Error("Content-Length must be dropped when compressing")
			}
			reader, err := gzip.NewReader(rec.Body)
			if err != nil {
				t.Fatalf("gzip.NewReader() error = %v", err)
			}
			defer reader.Close()
			body, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(body) != jsonBody {
				t.Error("decompressed body differs")
			}
		})
	}
}

func TestCompression_SkipsUncompressibleResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"no content", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNoContent)
		}},
		{"binary", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
		}},
		{"already encoded", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Header().Set("Content-Encoding", "br")
			_, _ = w.Write([]byte("opaque"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/ot-1", nil)
			req.Header.Set("Accept-Encoding", "gzip")
			rec := httptest.NewRecorder()
			Compression(tt.handler).ServeHTTP(rec, req)

			if rec.Header().Get("Content-Encoding") == "gzip" {
				t.Error("response should not be gzipped")
			}
		})
	}
}

func TestGzipResponseWriter_ImplicitHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	gzw := &gzipResponseWriter{ResponseWriter: rec, gz: gzip.NewWriter(io.Discard)}
	if _, err := gzw.Write([]byte(`{"ok":true}`)); err != nil {
		t.Fatal(err)
	}
	gzw.close()
	if !gzw.wroteHeader || rec.Code != http.StatusOK {
		t.Errorf("wroteHeader = %v, code = %d", gzw.wroteHeader, rec.Code)
	}
	if rec.Header().Get("Content-Type") == "" {
		t.Error("Content-Type should be sniffed when unset")
	}
}
