package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSelectionMode(t *testing.T) {
	tests := []struct {
		input    string
		expected SelectionMode
		ok       bool
	}{
		{"", SelectAuto, true},
		{"auto", SelectAuto, true},
		{"primary", SelectPrimary, true},
		{"vlm", SelectPrimary, true},
		{"secondary", SelectSecondary, true},
		{"tesseract", SelectSecondary, true},
		{"paddle", "", false},
		{"AUTO", "", false},
	}

	for _, tt := range tests {
		t.Run("input_"+tt.input, func(t *testing.T) {
			mode, ok := ParseSelectionMode(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, mode)
		})
	}
}

func TestWordCount(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{"empty", "", 0},
		{"single word", "hello", 1},
		{"two words", "hello world", 2},
		{"leading and trailing space", "  hello world  ", 2},
		{"newlines and tabs", "line one\nline\ttwo", 4},
		{"multiple spaces between words", "a    b     c", 3},
		{"only whitespace", " \t\n ", 0},
		{"unicode text", "پاکستان زندہ باد", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, WordCount(tt.text))
		})
	}
}

func TestImageFormat(t *testing.T) {
	assert.Equal(t, "jpeg", imageFormat("/tmp/a.jpg"))
	assert.Equal(t, "jpeg", imageFormat("/tmp/a.JPEG"))
	assert.Equal(t, "png", imageFormat("scan.png"))
	assert.Equal(t, "webp", imageFormat("x.webp"))
	assert.Equal(t, "tiff", imageFormat("x.tif"))
	assert.Equal(t, "", imageFormat("doc.pdf"))
}

func TestOCRPrompt(t *testing.T) {
	assert.Contains(t, ocrPrompt("urd"), "Arabic or Urdu")
	assert.Contains(t, ocrPrompt("ara"), "Arabic or Urdu")
	assert.NotContains(t, ocrPrompt("eng"), "Urdu")
}
