package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// snapshotEntry is a replayable copy of a successful response.
type snapshotEntry struct {
	status      int
	contentType string
	body        []byte
}

// teeWriter copies everything the handler writes into buf.
type teeWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *teeWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *teeWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache serves repeated GETs of the same URL from memory for ttl. Only 2xx
// responses are stored; hits carry an X-Cache: HIT header.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.URL.RequestURI()
		if v, ok := store.Get(key); ok {
			entry := v.(*snapshotEntry)
			c.Header("X-Cache", "HIT")
			c.Data(entry.status, entry.contentType, entry.body)
			c.Abort()
			return
		}

		tee := &teeWriter{ResponseWriter: c.Writer}
		c.Writer = tee
		c.Next()

		if status := tee.Status(); status >= 200 && status < 300 {
			store.Set(key, &snapshotEntry{
				status:      status,
				contentType: tee.Header().Get("Content-Type"),
				body:        bytes.Clone(tee.buf.Bytes()),
			}, ttl)
		}
	}
}
