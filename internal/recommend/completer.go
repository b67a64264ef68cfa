package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel はAI_MODEL未指定時に使うモデル名。
const DefaultModel = "gemini-2.0-flash"

// ErrEmptyCompletion はAIが本文を返さなかったことを示す。
var ErrEmptyCompletion = errors.New("empty completion")

// Completer は外部AIにプロンプトを送信し、応答テキストを返すインターフェース。
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// backendName はCompleterがName()を持つ場合はその値を、持たない場合はunknownを返す。
func backendName(c Completer) string {
	if n, ok := c.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "unknown"
}

// GenAICompleter はGoogle GenAI（Gemini）を使うCompleter。
type GenAICompleter struct {
	client *genai.Client
	model  string
}

// NewGenAICompleter はGenAICompleterを生成する。
// APIキーが空の場合はエラーを返す。
func NewGenAICompleter(ctx context.Context, apiKey, model string) (*GenAICompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI APIキーが設定されていません")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("GenAIクライアントの生成に失敗: %w", err)
	}

	return &GenAICompleter{client: client, model: model}, nil
}

// Complete はプロンプトを1ターンのユーザーメッセージとして送信する。
func (c *GenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GenAI呼び出しに失敗: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// Name はログ出力用のバックエンド名を返す。
func (c *GenAICompleter) Name() string {
	return "genai:" + c.model
}

// UnavailableCompleter はAIバックエンドが未設定の場合に使うCompleter。
// 全ての呼び出しを失敗させ、ジョブはfailedになる。
type UnavailableCompleter struct{}

// Name はログ出力用のバックエンド名を返す。
func (UnavailableCompleter) Name() string { return "unavailable" }

// Complete は常にエラーを返す。
func (UnavailableCompleter) Complete(context.Context, string) (string, error) {
	return "", errors.New("AIバックエンドが設定されていません")
}
