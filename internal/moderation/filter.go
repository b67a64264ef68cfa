// Package moderation はフォーラム投稿の検閲機能を提供する。
// 正規表現によるコンテンツフィルタとIPアドレスのBANを扱う。
package moderation

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/hitoshi/bestdressed/internal/model"
)

// ContentFilter は禁止パターンに一致するテキストを拒否する。
// パターンはテキストの先頭から照合される。
// ゼロ値はパターンを持たず、全てのテキストを通過させる。
type ContentFilter struct {
	patterns []*regexp.Regexp
}

// NewContentFilter はパターン文字列からContentFilterを生成する。
// 空行と#で始まる行は無視する。
func NewContentFilter(patterns []string) (*ContentFilter, error) {
	f := &ContentFilter{}
	for i, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		re, err := regexp.Compile(`^(?:` + p + `)`)
		if err != nil {
			return nil, fmt.Errorf("フィルタ %d 行目の正規表現が不正: %w", i+1, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

// ReadContentFilter は1行1パターンの形式でフィルタを読み込む。
func ReadContentFilter(r io.Reader) (*ContentFilter, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("フィルタの読み込みに失敗: %w", err)
	}
	return NewContentFilter(lines)
}

// LoadContentFilter はファイルからフィルタを読み込む。
// pathが空、またはファイルが存在しない場合はフィルタなしで動作する。
func LoadContentFilter(path string, logger *slog.Logger) (*ContentFilter, error) {
	if path == "" {
		logger.Info("コンテンツフィルタは設定されていません")
		return &ContentFilter{}, nil
	}

	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("コンテンツフィルタのファイルが見つかりません", slog.String("path", path))
		return &ContentFilter{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィルタファイルのオープンに失敗: %w", err)
	}
	defer file.Close()

	filter, err := ReadContentFilter(file)
	if err != nil {
		return nil, err
	}
	logger.Info("コンテンツフィルタを読み込みました",
		slog.String("path", path),
		slog.Int("patterns", filter.Len()),
	)
	return filter, nil
}

// Len は有効なパターン数を返す。
func (f *ContentFilter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.patterns)
}

// Matches はいずれかのテキストがパターンに一致するかを返す。
func (f *ContentFilter) Matches(texts ...string) bool {
	if f == nil {
		return false
	}
	for _, text := range texts {
		for _, re := range f.patterns {
			if re.MatchString(text) {
				return true
			}
		}
	}
	return false
}

// Check は一致した場合にCONTENT_FILTEREDエラーを返す。
func (f *ContentFilter) Check(texts ...string) error {
	if f.Matches(texts...) {
		return model.NewContentFilteredError()
	}
	return nil
}
