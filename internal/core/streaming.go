package core

// streaming.go provides the reader chain applied to every uploaded file.
//
// Files from spreadsheet tools routinely carry a UTF-8 BOM, stray
// Windows-1252 bytes or are simply too large. The chain is:
//
//	size limit -> BOM skip -> UTF-8 sanitizer
//
// so the limit counts raw bytes and the CSV reader only ever sees valid UTF-8.

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrFileTooLarge is returned when an upload exceeds the configured size.
var ErrFileTooLarge = errors.New("file too large")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// NewCleanReader wraps r with the size limit, BOM skipping and UTF-8
// sanitization. A maxBytes of zero or less disables the limit.
func NewCleanReader(r io.Reader, maxBytes int64) io.Reader {
	return NewUTF8Sanitizer(SkipBOM(LimitReader(r, maxBytes)))
}

// LimitReader returns a reader that fails with ErrFileTooLarge once more
// than maxBytes have been read. Unlike io.LimitReader, hitting the limit is
// an error rather than a silent truncation.
func LimitReader(r io.Reader, maxBytes int64) io.Reader {
	if maxBytes <= 0 {
		return r
	}
	return &sizeLimitedReader{r: r, remaining: maxBytes, limit: maxBytes}
}

type sizeLimitedReader struct {
	r         io.Reader
	remaining int64
	limit     int64
}

func (l *sizeLimitedReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if l.remaining <= 0 {
		// Probe one byte to tell "exactly at the limit" from "over it".
		var probe [1]byte
		n, err := l.r.Read(probe[:])
		if n > 0 {
			return 0, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, l.limit)
		}
		return 0, err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}

// SkipBOM returns a reader positioned after a leading UTF-8 BOM, if any.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// UTF8Sanitizer replaces invalid UTF-8 bytes with '?' as data streams through.
// A one-byte replacement keeps the output no longer than the input, so the
// rewrite happens in the caller's buffer.
type UTF8Sanitizer struct {
	r io.Reader

	// Leading bytes of a multi-byte rune split across two reads.
	pending []byte
}

// NewUTF8Sanitizer creates a sanitizing reader.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

// Read implements io.Reader. Callers must supply buffers of at least
// utf8.UTFMax bytes; bufio and encoding/csv always do.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	off := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[off:])
	n += off
	if n == 0 {
		return 0, err
	}

	return s.sanitize(p[:n], err == io.EOF), err
}

// sanitize rewrites data in place and returns the number of bytes to emit.
// Unless atEOF, an incomplete trailing rune is held back for the next read.
func (s *UTF8Sanitizer) sanitize(data []byte, atEOF bool) int {
	w := 0
	for r := 0; r < len(data); {
		c := data[r]
		if c < utf8.RuneSelf {
			data[w] = c
			w++
			r++
			continue
		}

		if !atEOF && !utf8.FullRune(data[r:]) {
			s.pending = append(s.pending, data[r:]...)
			break
		}

		_, size := utf8.DecodeRune(data[r:])
		if size == 1 {
			data[w] = '?'
			w++
			r++
			continue
		}
		copy(data[w:], data[r:r+size])
		w += size
		r += size
	}
	return w
}

// ContextReader returns a reader that fails with ctx.Err() once ctx is done,
// so a parse of a slow or huge upload stops at the request deadline.
func ContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &contextReader{ctx: ctx, r: r}
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
