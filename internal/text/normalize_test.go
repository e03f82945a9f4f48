package text

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{
			name:  "passthrough clean text",
			input: "Hello world",
			want:  "Hello world",
		},
		{
			name:  "trims leading whitespace",
			input: "  Hello",
			want:  "Hello",
		},
		{
			name:  "trims trailing whitespace",
			input: "Hello  ",
			want:  "Hello",
		},
		{
			name:  "trims leading and trailing whitespace",
			input: "  Hello world  ",
			want:  "Hello world",
		},
		{
			name:  "trims tabs and newlines from edges",
			input: "\t\n Hello \n\t",
			want:  "Hello",
		},
		{
			name:  "normalizes CRLF to LF",
			input: "line one\r\nline two",
			want:  "line one\nline two",
		},
		{
			name:  "normalizes bare CR to LF",
			input: "line one\rline two",
			want:  "line one\nline two",
		},
		{
			name:  "preserves existing LF",
			input: "line one\nline two",
			want:  "line one\nline two",
		},
		{
			name:  "normalizes mixed line endings",
			input: "a\r\nb\rc\nd",
			want:  "a\nb\nc\nd",
		},
		{
			name:    "rejects empty string",
			input:   "",
			wantErr: ErrEmptyText,
		},
		{
			name:    "rejects whitespace-only string",
			input:   "   \t\n  ",
			wantErr: ErrEmptyText,
		},
		{
			name:  "preserves unicode content",
			input: "  Héllo wörld  ",
			want:  "Héllo wörld",
		},
		{
			name:  "preserves internal whitespace",
			input: "  hello   world  ",
			want:  "hello   world",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("expected error %v, got nil", tt.wantErr)
				}

				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}

				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseForm(t *testing.T) {
	tests := []struct {
		in      string
		want    Form
		wantErr bool
	}{
		{in: "", want: FormNone},
		{in: "none", want: FormNone},
		{in: "NFC", want: FormNFC},
		{in: " nfkc ", want: FormNFKC},
		{in: "nfd", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseForm(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseForm(%q) expected error", tt.in)
			}

			continue
		}

		if err != nil {
			t.Fatalf("ParseForm(%q) unexpected error: %v", tt.in, err)
		}

		if got != tt.want {
			t.Errorf("ParseForm(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestApplyForm(t *testing.T) {
	// ো (U+09CB) is the canonical composition of ে (U+09C7) + া (U+09BE).
	decomposed := "\u0995\u09c7\u09be"
	composed := "\u0995\u09cb"

	if got := ApplyForm(decomposed, FormNone); got != decomposed {
		t.Errorf("FormNone changed input: %q", got)
	}

	if got := ApplyForm(decomposed, FormNFC); got != composed {
		t.Errorf("FormNFC = %q, want %q", got, composed)
	}

	if got := ApplyForm("\uff21", FormNFKC); got != "A" {
		t.Errorf("FormNFKC fullwidth A = %q, want %q", got, "A")
	}

	if got := ApplyForm("\uff21", FormNFC); got != "\uff21" {
		t.Errorf("FormNFC must keep compatibility characters, got %q", got)
	}
}
