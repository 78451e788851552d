package middleware

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// DefaultBrotliMinLength is the smallest body worth compressing. Lobby and
// report payloads cross it, tick-sized session replies usually do not.
const DefaultBrotliMinLength = 1024

// brotliWriter holds the body back until it is known to be large enough,
// then switches to a brotli stream for the rest of the response.
type brotliWriter struct {
	gin.ResponseWriter
	quality   int
	minLength int
	buf       []byte
	br        *brotli.Writer
}

func (w *brotliWriter) Write(data []byte) (int, error) {
	if w.br != nil {
		return w.br.Write(data)
	}

	w.buf = append(w.buf, data...)
	if len(w.buf) < w.minLength {
		return len(data), nil
	}

	h := w.ResponseWriter.Header()
	h.Set("Content-Encoding", "br")
	h.Del("Content-Length")
	w.br = brotli.NewWriterLevel(w.ResponseWriter, w.quality)
	if _, err := w.br.Write(w.buf); err != nil {
		return 0, err
	}
	w.buf = nil
	return len(data), nil
}

func (w *brotliWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// finish writes a short body uncompressed or closes the brotli stream.
func (w *brotliWriter) finish() error {
	if w.br != nil {
		return w.br.Close()
	}
	if len(w.buf) == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(w.buf)
	w.buf = nil
	return err
}

// Brotli compresses responses for clients that accept "br".
func Brotli() gin.HandlerFunc {
	return BrotliLevel(brotli.DefaultCompression, DefaultBrotliMinLength)
}

// BrotliLevel is Brotli with an explicit quality (0-11) and threshold.
func BrotliLevel(quality, minLength int) gin.HandlerFunc {
	if quality < brotli.BestSpeed || quality > brotli.BestCompression {
		quality = brotli.DefaultCompression
	}
	if minLength <= 0 {
		minLength = DefaultBrotliMinLength
	}

	return func(c *gin.Context) {
		// Upgrade handshakes must reach the hijacker untouched and event
		// streams are flushed per message.
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") ||
			strings.Contains(c.GetHeader("Accept"), "text/event-stream") ||
			!acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		bw := &brotliWriter{ResponseWriter: c.Writer, quality: quality, minLength: minLength}
		c.Writer = bw
		defer func() {
			if err := bw.finish(); err != nil {
				_ = c.Error(err)
			}
		}()
		c.Next()
	}
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, "br") {
			return true
		}
	}
	return false
}
