package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmora/backend/internal/llm"
)

// scriptedBackend returns canned translations and records what it was sent.
type scriptedBackend struct {
	name string
	out  map[string]string
	err  error

	mu   sync.Mutex
	sent []string
}

func (b *scriptedBackend) Name() string { return b.name }

func (b *scriptedBackend) Translate(_ context.Context, text, from, to string) (string, error) {
	b.mu.Lock()
	b.sent = append(b.sent, text)
	b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	if out, ok := b.out[from+">"+to]; ok {
		return out, nil
	}
	return "", errors.New("unsupported pair")
}

func (b *scriptedBackend) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"நாளை மழை பெய்யுமா?", "ta"},
		{"कल बारिश होगी क्या?", "hi"},
		{"उद्या पाऊस पडेल का?", "mr"},
		{"माझ्या शेतात कोणते खत वापरावे?", "mr"},
		{"कांद्याचा भाव किती आहे?", "mr"},
		{"मेरे खेत में कौन सी खाद डालें?", "hi"},
		{"ਕੱਲ੍ਹ ਮੀਂਹ ਪਵੇਗਾ?", "pa"},
		{"Will it rain tomorrow?", "en"},
		{"நாளை rice விலை என்ன?", "ta"},
		{"1234 ???", ""},
		{"ಮಳೆ", "kn"},
		{"What is ধান price in Kolkata?", "en"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectLanguage(tt.text), tt.text)
	}
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "ta", NormalizeCode(" ta-IN "))
	assert.Equal(t, "Tamil", LanguageName("ta_IN"))
	assert.Equal(t, "xx", LanguageName("xx"))
	assert.True(t, Supported("HI"))
}

func TestMask_RoundTrip(t *testing.T) {
	m := newMasker([]string{"rice", "Chennai"})

	masked, originals := m.mask("Rice prices in Chennai; rice again", nil)

	assert.Equal(t, "[[0]] prices in [[1]]; [[2]] again", masked)
	assert.Equal(t, []string{"Rice", "Chennai", "rice"}, originals)
	assert.Equal(t, "Rice prices in Chennai; rice again", unmask(masked, originals))
	assert.Equal(t, "Rice", unmask("[[ 0 ]]", originals))
	assert.Equal(t, "[[9]]", unmask("[[9]]", originals))
}

func TestNormalizer_TamilRoundTripKeepsEntity(t *testing.T) {
	b := &scriptedBackend{name: "groq", out: map[string]string{
		"ta>en": "What is the price of [[0]] in Chennai tomorrow?",
		"en>ta": "நாளை சென்னையில் [[0]] விலை குவிண்டாலுக்கு ₹2,200.",
	}}
	n := NewNormalizer(Config{ProtectedTerms: []string{"rice"}}, b)

	in := n.ToWorkingLanguage(context.Background(), "நாளை சென்னையில் rice விலை என்ன?", "")
	require.False(t, in.Degraded)
	assert.Equal(t, "ta", in.Source)
	assert.Equal(t, "What is the price of rice in Chennai tomorrow?", in.Text)
	assert.NotContains(t, b.calls()[0], "rice")

	out := n.ToUserLanguage(context.Background(), "Rice sells at ₹2,200 per quintal.", "ta", map[string]string{"crop": "Rice"})
	require.False(t, out.Degraded)
	assert.Equal(t, "groq", out.Provider)
	assert.Contains(t, out.Text, "Rice")
}

func TestNormalizer_FallsBackToSecondBackend(t *testing.T) {
	primary := &scriptedBackend{name: "groq", err: errors.New("rate limited")}
	fallback := &scriptedBackend{name: "huggingface", out: map[string]string{"hi>en": "Will it rain tomorrow?"}}
	n := NewNormalizer(Config{}, primary, fallback)

	res := n.ToWorkingLanguage(context.Background(), "कल बारिश होगी क्या?", "hi")

	assert.Equal(t, "huggingface", res.Provider)
	assert.Equal(t, "Will it rain tomorrow?", res.Text)
	assert.Len(t, primary.calls(), 1)
}

func TestNormalizer_DegradedPassthrough(t *testing.T) {
	b := &scriptedBackend{name: "groq", err: errors.New("down")}
	n := NewNormalizer(Config{}, b)

	res := n.ToUserLanguage(context.Background(), "Light rain tomorrow.", "ta", nil)

	assert.True(t, res.Degraded)
	assert.Equal(t, "Light rain tomorrow.", res.Text)
	assert.Contains(t, res.Detail, "down")

	// degraded results are not cached, so the backend is asked again
	n.ToUserLanguage(context.Background(), "Light rain tomorrow.", "ta", nil)
	assert.Len(t, b.calls(), 2)
}

func TestNormalizer_SameLanguageSkipsBackends(t *testing.T) {
	b := &scriptedBackend{name: "groq"}
	n := NewNormalizer(Config{}, b)

	res := n.ToWorkingLanguage(context.Background(), "  Will it rain?  ", "")

	assert.Equal(t, "Will it rain?", res.Text)
	assert.False(t, res.Degraded)
	assert.False(t, res.Translated())
	assert.Empty(t, b.calls())
}

func TestNormalizer_CachesTranslations(t *testing.T) {
	b := &scriptedBackend{name: "groq", out: map[string]string{"ta>en": "Rain tomorrow?"}}
	n := NewNormalizer(Config{}, b)

	for i := 0; i < 3; i++ {
		res := n.ToWorkingLanguage(context.Background(), "நாளை மழை?", "ta")
		assert.Equal(t, "Rain tomorrow?", res.Text)
	}
	assert.Len(t, b.calls(), 1)
}

func TestHuggingFaceBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))

		var req nllbRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tam_Taml", req.Parameters.SrcLang)
		assert.Equal(t, "eng_Latn", req.Parameters.TgtLang)

		_, _ = w.Write([]byte(`[{"translation_text":"Will it rain tomorrow?"}]`))
	}))
	defer srv.Close()

	b := NewHuggingFaceBackend(srv.URL, "hf-token", time.Second)
	out, err := b.Translate(context.Background(), "நாளை மழை பெய்யுமா?", "ta", "en")

	require.NoError(t, err)
	assert.Equal(t, "Will it rain tomorrow?", out)
}

type fakeCompleter struct {
	content string
	err     error
	prompt  string
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.prompt = req.UserPrompt
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content}, nil
}

func TestGroqBackend(t *testing.T) {
	c := &fakeCompleter{content: "  \"மழை நாளை\"  "}
	b := NewGroqBackend(c)

	out, err := b.Translate(context.Background(), "Rain tomorrow", "en", "ta")

	require.NoError(t, err)
	assert.Equal(t, "மழை நாளை", out)
	assert.True(t, strings.Contains(c.prompt, "from English to Tamil"))

	c.content = "   "
	_, err = b.Translate(context.Background(), "Rain tomorrow", "en", "ta")
	assert.ErrorIs(t, err, ErrEmptyTranslation)
}
