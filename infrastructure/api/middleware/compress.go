package middleware

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

const (
	// CompressMinSize is the smallest body worth compressing.
	CompressMinSize = 2 << 10
	// CompressMaxSize is the largest body we buffer for compression;
	// anything bigger streams out as identity.
	CompressMaxSize = 5 << 20
)

// Content types that are already entropy-coded.
var incompressibleTypes = []string{
	"image/", "video/", "audio/",
	"application/zip", "application/gzip", "application/x-gzip",
	"application/pdf", "application/octet-stream",
}

// Compression negotiates br > gzip > identity from Accept-Encoding and
// compresses buffered responses within the size window.
func Compression() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			encoding := negotiateEncoding(r.Header.Get("Accept-Encoding"))
			if encoding == "" {
				next.ServeHTTP(w, r)
				return
			}

			rec := &compressRecorder{underlying: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			rec.finish(encoding)
		})
	}
}

func negotiateEncoding(accept string) string {
	var hasBR, hasGzip bool
	for _, part := range strings.Split(accept, ",") {
		name := strings.TrimSpace(part)
		if idx := strings.IndexByte(name, ';'); idx >= 0 {
			name = strings.TrimSpace(name[:idx])
		}
		switch name {
		case "br":
			hasBR = true
		case "gzip":
			hasGzip = true
		}
	}
	if hasBR {
		return "br"
	}
	if hasGzip {
		return "gzip"
	}
	return ""
}

// compressRecorder buffers the response until the handler returns,
// then either compresses it or replays it verbatim. Bodies that
// outgrow the buffer switch to passthrough mid-flight.
type compressRecorder struct {
	underlying  http.ResponseWriter
	buf         bytes.Buffer
	status      int
	passthrough bool
	headerSent  bool
}

func (rec *compressRecorder) Header() http.Header { return rec.underlying.Header() }

func (rec *compressRecorder) WriteHeader(status int) {
	if rec.headerSent {
		return
	}
	rec.status = status
	if rec.passthrough {
		rec.underlying.WriteHeader(status)
		rec.headerSent = true
	}
}

func (rec *compressRecorder) Write(p []byte) (int, error) {
	if rec.passthrough {
		return rec.underlying.Write(p)
	}
	if rec.buf.Len()+len(p) > CompressMaxSize {
		rec.spill()
		return rec.underlying.Write(p)
	}
	return rec.buf.Write(p)
}

// spill abandons buffering and streams everything written so far.
func (rec *compressRecorder) spill() {
	rec.passthrough = true
	if !rec.headerSent {
		rec.underlying.WriteHeader(rec.status)
		rec.headerSent = true
	}
	_, _ = rec.underlying.Write(rec.buf.Bytes())
	rec.buf.Reset()
}

func (rec *compressRecorder) finish(encoding string) {
	if rec.passthrough {
		return
	}
	header := rec.underlying.Header()

	if rec.buf.Len() < CompressMinSize ||
		header.Get("Content-Encoding") != "" ||
		isIncompressible(header.Get("Content-Type")) {
		rec.spill()
		return
	}

	var compressed bytes.Buffer
	switch encoding {
	case "br":
		bw := brotli.NewWriter(&compressed)
		if _, err := bw.Write(rec.buf.Bytes()); err != nil {
			rec.spill()
			return
		}
		if err := bw.Close(); err != nil {
			rec.spill()
			return
		}
	case "gzip":
		gw := gzip.NewWriter(&compressed)
		if _, err := gw.Write(rec.buf.Bytes()); err != nil {
			rec.spill()
			return
		}
		if err := gw.Close(); err != nil {
			rec.spill()
			return
		}
	default:
		rec.spill()
		return
	}

	header.Set("Content-Encoding", encoding)
	header.Set("Content-Length", strconv.Itoa(compressed.Len()))
	header.Add("Vary", "Accept-Encoding")
	rec.underlying.WriteHeader(rec.status)
	_, _ = rec.underlying.Write(compressed.Bytes())
}

func isIncompressible(contentType string) bool {
	for _, prefix := range incompressibleTypes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}
