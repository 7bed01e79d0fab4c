package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

// BodyCacheLimit caps how much of a request body is buffered for
// stages that need to re-read it. Larger bodies stream through
// untouched.
const BodyCacheLimit = 64 << 10

type bodyCacheKey struct{}

// BodyCache buffers small request bodies once and exposes them via
// BufferedBody so later stages can inspect the payload without
// consuming it.
func BodyCache() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			buf := make([]byte, BodyCacheLimit+1)
			n, err := io.ReadFull(r.Body, buf)
			if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
				r.Body.Close()
				next.ServeHTTP(w, r)
				return
			}

			if n > BodyCacheLimit {
				// Too large to cache: stitch the read prefix back in
				// front of the remaining stream.
				r.Body = struct {
					io.Reader
					io.Closer
				}{io.MultiReader(bytes.NewReader(buf[:n]), r.Body), r.Body}
				next.ServeHTTP(w, r)
				return
			}

			r.Body.Close()
			cached := buf[:n]
			r.Body = io.NopCloser(bytes.NewReader(cached))
			ctx := context.WithValue(r.Context(), bodyCacheKey{}, cached)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BufferedBody returns the cached request body, if the body cache
// captured one.
func BufferedBody(ctx context.Context) ([]byte, bool) {
	b, ok := ctx.Value(bodyCacheKey{}).([]byte)
	return b, ok
}
