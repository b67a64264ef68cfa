package moderation

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hitoshi/bestdressed/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestContentFilter_Matches(t *testing.T) {
	filter, err := NewContentFilter([]string{
		"# comment line",
		"",
		`buy\s+followers`,
		`(?i)spam`,
		`.*casino`,
	})
	if err != nil {
		t.Fatalf("NewContentFilter() error: %v", err)
	}
	if filter.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", filter.Len())
	}

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"先頭一致", "buy   followers today", true},
		{"大文字小文字無視", "SPAM here", true},
		{"途中の一致は先頭照合のため通過", "please do not spam", false},
		{"ワイルドカードで途中も一致", "best online casino deals", true},
		{"通常の投稿", "Love this denim jacket", false},
		{"空文字", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := filter.Matches(tt.text); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestContentFilter_CheckMultipleTexts(t *testing.T) {
	filter, _ := NewContentFilter([]string{"forbidden"})

	if err := filter.Check("title ok", "body ok"); err != nil {
		t.Errorf("Check() = %v, want nil", err)
	}

	err := filter.Check("title ok", "forbidden body")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeContentFiltered {
		t.Errorf("Check() = %v, want CONTENT_FILTERED", err)
	}
}

func TestContentFilter_ZeroAndNil(t *testing.T) {
	var nilFilter *ContentFilter
	if nilFilter.Matches("anything") || nilFilter.Check("anything") != nil {
		t.Error("nil filter must pass everything")
	}
	if (&ContentFilter{}).Matches("anything") {
		t.Error("empty filter must pass everything")
	}
}

func TestNewContentFilter_InvalidPattern(t *testing.T) {
	_, err := NewContentFilter([]string{"ok", "(unclosed"})
	if err == nil {
		t.Fatal("expected error for invalid regex")
	}
	if !strings.Contains(err.Error(), "2 行目") {
		t.Errorf("error should name the line: %v", err)
	}
}

func TestReadContentFilter(t *testing.T) {
	filter, err := ReadContentFilter(strings.NewReader("first\n\n# skip\nsecond\n"))
	if err != nil {
		t.Fatalf("ReadContentFilter() error: %v", err)
	}
	if filter.Len() != 2 {
		t.Errorf("Len() = %d, want 2", filter.Len())
	}
}

func TestLoadContentFilter(t *testing.T) {
	t.Run("パス未設定", func(t *testing.T) {
		filter, err := LoadContentFilter("", discardLogger())
		if err != nil || filter.Len() != 0 {
			t.Errorf("LoadContentFilter(\"\") = %v, %v", filter, err)
		}
	})

	t.Run("ファイルなしは警告のみ", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		filter, err := LoadContentFilter(filepath.Join(t.TempDir(), "missing.txt"), logger)
		if err != nil {
			t.Fatalf("LoadContentFilter() error: %v", err)
		}
		if filter.Len() != 0 {
			t.Errorf("Len() = %d, want 0", filter.Len())
		}
		if !strings.Contains(buf.String(), "コンテンツフィルタのファイルが見つかりません") {
			t.Errorf("expected warning log, got %s", buf.String())
		}
	})

	t.Run("ファイルから読み込み", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "filters.txt")
		if err := os.WriteFile(path, []byte("badword\nother\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		filter, err := LoadContentFilter(path, discardLogger())
		if err != nil {
			t.Fatalf("LoadContentFilter() error: %v", err)
		}
		if !filter.Matches("badword!") {
			t.Error("loaded pattern should match")
		}
	})

	t.Run("不正な正規表現はエラー", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "filters.txt")
		if err := os.WriteFile(path, []byte("[a-\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadContentFilter(path, discardLogger()); err == nil {
			t.Error("expected error for invalid pattern file")
		}
	})
}
