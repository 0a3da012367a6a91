package middleware

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

type CompressConfig struct {
	Quality   int
	MinLength int
}

var DefaultCompressConfig = CompressConfig{
	Quality:   brotli.DefaultCompression,
	MinLength: 1024,
}

// compressWriter holds the whole body so the encoding decision can be made
// once the size is known.
type compressWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *compressWriter) Write(data []byte) (int, error) {
	return w.buf.Write(data)
}

func (w *compressWriter) WriteString(s string) (int, error) {
	return w.buf.WriteString(s)
}

func (w *compressWriter) finish(cfg CompressConfig) error {
	body := w.buf.Bytes()
	if len(body) == 0 {
		return nil
	}

	if len(body) < cfg.MinLength || w.Header().Get("Content-Encoding") != "" {
		_, err := w.ResponseWriter.Write(body)
		return err
	}

	w.Header().Set("Content-Encoding", "br")
	w.Header().Del("Content-Length")

	bw := brotli.NewWriterLevel(w.ResponseWriter, cfg.Quality)
	if _, err := bw.Write(body); err != nil {
		return err
	}
	return bw.Close()
}

// Compress brotli-encodes response bodies of at least MinLength bytes for
// clients that accept it. Question sets are the main beneficiary.
func Compress() gin.HandlerFunc {
	return CompressWithConfig(DefaultCompressConfig)
}

func CompressWithConfig(cfg CompressConfig) gin.HandlerFunc {
	if cfg.Quality < brotli.BestSpeed || cfg.Quality > brotli.BestCompression {
		cfg.Quality = brotli.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultCompressConfig.MinLength
	}

	return func(c *gin.Context) {
		if !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")

		original := c.Writer
		cw := &compressWriter{ResponseWriter: original}
		c.Writer = cw

		c.Next()

		c.Writer = original
		if err := cw.finish(cfg); err != nil {
			_ = c.Error(err)
		}
	}
}

func acceptsBrotli(r *http.Request) bool {
	ae := r.Header.Get("Accept-Encoding")
	for _, enc := range strings.Split(ae, ",") {
		// Drop any quality parameter ("br;q=0.9").
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(strings.TrimSpace(name), "br") {
			return true
		}
	}
	return false
}
