package core

import (
	"math"
	"reflect"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

// ----------------------------------------------------------------------------
// CleanCell / IsMissing Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple string unchanged", input: "hello", want: "hello"},
		{name: "empty string", input: "", want: ""},
		{name: "surrounded by whitespace", input: "  hello  ", want: "hello"},
		{name: "Excel formula with quotes", input: `="T12"`, want: "T12"},
		{name: "surrounding double quotes", input: `"Acme, Inc"`, want: "Acme, Inc"},
		{name: "quotes inside kept", input: `say "hi"`, want: `say "hi"`},
		{name: "single quote char", input: `"`, want: `"`},
		{name: "whitespace inside quotes trimmed", input: `"  x  "`, want: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCell(tt.input); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsMissing(t *testing.T) {
	for _, s := range []string{"", "undefined"} {
		if !IsMissing(s) {
			t.Errorf("IsMissing(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"0", "null", " "} {
		if IsMissing(s) {
			t.Errorf("IsMissing(%q) = true, want false", s)
		}
	}
}

// ----------------------------------------------------------------------------
// ParseInt4 Tests
// ----------------------------------------------------------------------------

func TestParseInt4(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  pgtype.Int4
	}{
		{name: "plain integer", input: "3", want: Int4(3)},
		{name: "negative", input: "-5", want: Int4(-5)},
		{name: "decimal truncated", input: "3.5", want: Int4(3)},
		{name: "trailing text", input: "4 days", want: Int4(4)},
		{name: "quoted", input: `"2"`, want: Int4(2)},
		{name: "no digits is zero", input: "high", want: Int4(0)},
		{name: "empty is invalid", input: "", want: pgtype.Int4{}},
		{name: "undefined is invalid", input: "undefined", want: pgtype.Int4{}},
		{name: "overflow saturates", input: "99999999999", want: Int4(math.MaxInt32)},
		{name: "negative overflow saturates", input: "-99999999999", want: Int4(math.MinInt32)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseInt4(tt.input); got != tt.want {
				t.Errorf("ParseInt4(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// SplitList Tests
// ----------------------------------------------------------------------------

func TestSplitList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "comma separated", input: "T1, T2,T3", want: []string{"T1", "T2", "T3"}},
		{name: "bracketed with quotes", input: `[a, 'b', "c"]`, want: []string{"a", "b", "c"}},
		{name: "empty items dropped", input: "a,,b, ", want: []string{"a", "b"}},
		{name: "single item", input: "sql", want: []string{"sql"}},
		{name: "empty brackets", input: "[]", want: []string{}},
		{name: "missing", input: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitList(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitList(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Phase Tests
// ----------------------------------------------------------------------------

func TestParsePhases(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []int
	}{
		{name: "json array", input: "[1,2,4]", want: []int{1, 2, 4}},
		{name: "range", input: "2-4", want: []int{2, 3, 4}},
		{name: "range with spaces", input: "1 - 3", want: []int{1, 2, 3}},
		{name: "comma list", input: "1, 3, 5", want: []int{1, 3, 5}},
		{name: "non numeric dropped", input: "1, x, 7", want: []int{1, 7}},
		{name: "out of range kept", input: "[0, 9]", want: []int{0, 9}},
		{name: "reversed range is empty", input: "3-1", want: []int{}},
		{name: "reversed range with spaces", input: "6 - 2", want: []int{}},
		{name: "only junk", input: "soon", want: []int{}},
		{name: "missing", input: "undefined", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePhases(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePhases(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidPhases(t *testing.T) {
	got := ValidPhases([]int{0, 1, 6, 7, 3, -1})
	want := []int{1, 6, 3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ValidPhases = %v, want %v", got, want)
	}
	if got := ValidPhases(nil); got == nil || len(got) != 0 {
		t.Errorf("ValidPhases(nil) = %#v, want empty non-nil", got)
	}
}

func TestFormatPhases(t *testing.T) {
	if got := FormatPhases([]int{1, 2, 3}); got != "1, 2, 3" {
		t.Errorf("FormatPhases = %q", got)
	}
	if got := FormatList([]string{"a", "b"}); got != "a, b" {
		t.Errorf("FormatList = %q", got)
	}
}

// ----------------------------------------------------------------------------
// Header Tests
// ----------------------------------------------------------------------------

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"Client ID":       "clientid",
		" Worker\tName ":  "workername",
		`="TaskID"`:       "taskid",
		"PreferredPhases": "preferredphases",
	}
	for in, want := range tests {
		if got := NormalizeHeader(in); got != want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHeaderSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"abc", "abc", 1},
		{"ab", "abcd", 0.5},
		{"abcd", "ab", 0.5},
		{"xyz", "abc", 0},
		{"", "", 0},
	}
	for _, tt := range tests {
		if got := HeaderSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("HeaderSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
