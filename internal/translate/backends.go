package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/farmora/backend/internal/llm"
	"github.com/farmora/backend/internal/tools"
)

var ErrEmptyTranslation = errors.New("backend returned an empty translation")

// Backend translates text between two language codes.
type Backend interface {
	Name() string
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// GroqBackend prompts an OpenAI-compatible chat model to translate.
type GroqBackend struct {
	llm llm.Completer
}

func NewGroqBackend(c llm.Completer) *GroqBackend {
	return &GroqBackend{llm: c}
}

func (b *GroqBackend) Name() string { return "groq" }

func (b *GroqBackend) Translate(ctx context.Context, text, from, to string) (string, error) {
	source := "auto-detected language"
	if from != "" {
		source = LanguageName(from)
	}

	prompt := fmt.Sprintf(`You are a professional translator. Please translate the following text from %s to %s.
If the source language is set to 'auto-detected language', first determine what language the text is in, then translate.
Keep every placeholder of the form [[0]], [[1]] exactly as written.

Text to translate:
%s

Translate the text completely and accurately. Provide ONLY the translated text without any comments, explanations, or additional text.`,
		source, LanguageName(to), text)

	resp, err := b.llm.Complete(ctx, llm.CompletionRequest{
		Purpose:     "translation",
		UserPrompt:  prompt,
		Temperature: 0.1,
	})
	if err != nil {
		return "", err
	}
	out := strings.Trim(strings.TrimSpace(resp.Content), `"`)
	if out == "" {
		return "", ErrEmptyTranslation
	}
	return out, nil
}

// HuggingFaceBackend calls the NLLB inference endpoint.
type HuggingFaceBackend struct {
	url      string
	upstream *tools.Upstream
}

func NewHuggingFaceBackend(url, token string, timeout time.Duration) *HuggingFaceBackend {
	up := tools.NewUpstream("huggingface", timeout)
	if token != "" {
		up.Header.Set("Authorization", "Bearer "+token)
	}
	return &HuggingFaceBackend{url: url, upstream: up}
}

func (b *HuggingFaceBackend) Name() string { return "huggingface" }

type nllbRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters nllbParameters `json:"parameters"`
}

type nllbParameters struct {
	SrcLang string `json:"src_lang"`
	TgtLang string `json:"tgt_lang"`
}

type nllbOutput struct {
	TranslationText string `json:"translation_text"`
}

func (b *HuggingFaceBackend) Translate(ctx context.Context, text, from, to string) (string, error) {
	src, ok := floresCodes[NormalizeCode(from)]
	if !ok {
		src = floresCodes[English]
	}
	tgt, ok := floresCodes[NormalizeCode(to)]
	if !ok {
		return "", fmt.Errorf("no NLLB code for %q", to)
	}

	var raw json.RawMessage
	err := b.upstream.PostJSON(ctx, b.url, nllbRequest{
		Inputs:     text,
		Parameters: nllbParameters{SrcLang: src, TgtLang: tgt},
	}, &raw)
	if err != nil {
		return "", err
	}

	// The endpoint answers with either a list or a single object.
	var list []nllbOutput
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return nonEmpty(list[0].TranslationText)
	}
	var single nllbOutput
	if err := json.Unmarshal(raw, &single); err != nil {
		return "", fmt.Errorf("failed to decode translation: %w", err)
	}
	return nonEmpty(single.TranslationText)
}

func nonEmpty(s string) (string, error) {
	if s = strings.TrimSpace(s); s == "" {
		return "", ErrEmptyTranslation
	}
	return s, nil
}
