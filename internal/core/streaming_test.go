package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestSkipBOM(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("ClientID,ClientName")...),
			expected: "ClientID,ClientName",
		},
		{
			name:     "file without BOM",
			input:    []byte("ClientID,ClientName"),
			expected: "ClientID,ClientName",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM at start",
			input:    []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			expected: string([]byte{0xEF, 0xBB, 'a', 'b', 'c'}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(SkipBOM(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestUTF8Sanitizer(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"valid ASCII", []byte("T1,Build"), "T1,Build"},
		{"valid multibyte", []byte("Zoë,Müller"), "Zoë,Müller"},
		{"invalid single byte replaced", []byte{'h', 'e', 0x80, 'l', 'o'}, "he?lo"},
		{"truncated rune at EOF", []byte{'a', 0xE2, 0x82}, "a??"},
		{"empty input", []byte{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(NewUTF8Sanitizer(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestUTF8Sanitizer_RuneSplitAcrossReads(t *testing.T) {
	// OneByteReader forces every multi-byte rune to straddle reads.
	input := "Zoë – ok"
	r := NewUTF8Sanitizer(iotest.OneByteReader(strings.NewReader(input)))

	buf := make([]byte, 0, len(input))
	chunk := make([]byte, 8)
	for {
		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if string(buf) != input {
		t.Errorf("got %q, want %q", string(buf), input)
	}
}

func TestLimitReader(t *testing.T) {
	t.Run("under limit", func(t *testing.T) {
		got, err := io.ReadAll(LimitReader(strings.NewReader("abc"), 10))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(got) != "abc" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("exactly at limit", func(t *testing.T) {
		got, err := io.ReadAll(LimitReader(strings.NewReader("abcd"), 4))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(got) != "abcd" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("over limit", func(t *testing.T) {
		_, err := io.ReadAll(LimitReader(strings.NewReader("abcdef"), 4))
		if !errors.Is(err, ErrFileTooLarge) {
			t.Errorf("err = %v, want ErrFileTooLarge", err)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		got, err := io.ReadAll(LimitReader(strings.NewReader("abcdef"), 0))
		if err != nil || string(got) != "abcdef" {
			t.Errorf("got %q, %v", got, err)
		}
	})
}

func TestNewCleanReader(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte{'h', 'e', 0x80, 'l', 'o'}...)

	result, err := io.ReadAll(NewCleanReader(bytes.NewReader(input), int64(len(input))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if string(result) != "he?lo" {
		t.Errorf("got %q, want %q", string(result), "he?lo")
	}
}

func TestContextReader(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := ContextReader(ctx, strings.NewReader("abcdef"))

	buf := make([]byte, 3)
	if n, err := r.Read(buf); err != nil || n != 3 {
		t.Fatalf("Read() = %d, %v", n, err)
	}

	cancel()
	if _, err := r.Read(buf); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
