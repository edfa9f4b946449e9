package chunker_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidi-cnm/supnum-backend/internal/pkg/chunker"
	apierrors "github.com/sidi-cnm/supnum-backend/pkg/utils/errors"
)

func TestSplitValidation(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		cfg      chunker.Config
		wantCode int
	}{
		{
			name:     "空文本",
			text:     "",
			cfg:      chunker.Config{MaxSize: 100, Overlap: 10},
			wantCode: apierrors.ErrInvalidInput.Code,
		},
		{
			name:     "仅空白字符",
			text:     "   \n\t  ",
			cfg:      chunker.Config{MaxSize: 100, Overlap: 10},
			wantCode: apierrors.ErrInvalidInput.Code,
		},
		{
			name:     "重叠等于块大小",
			text:     "du texte valide",
			cfg:      chunker.Config{MaxSize: 100, Overlap: 100},
			wantCode: apierrors.ErrInvalidConfig.Code,
		},
		{
			name:     "重叠大于块大小",
			text:     "du texte valide",
			cfg:      chunker.Config{MaxSize: 100, Overlap: 200},
			wantCode: apierrors.ErrInvalidConfig.Code,
		},
		{
			name:     "块大小为零",
			text:     "du texte valide",
			cfg:      chunker.Config{MaxSize: 0, Overlap: 0},
			wantCode: apierrors.ErrInvalidConfig.Code,
		},
		{
			name:     "负重叠",
			text:     "du texte valide",
			cfg:      chunker.Config{MaxSize: 100, Overlap: -1},
			wantCode: apierrors.ErrInvalidConfig.Code,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := chunker.Split(tt.text, tt.cfg)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apierrors.GetCode(err))
		})
	}
}

func TestSplitShortText(t *testing.T) {
	text := "Ceci est un document de test pour vérifier le système RAG."
	chunks, err := chunker.Split(text, chunker.Config{MaxSize: 500, Overlap: 50})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplitSentenceAware(t *testing.T) {
	text := "Première phrase du document. Deuxième phrase un peu plus longue. Troisième phrase. Quatrième phrase pour finir."
	chunks, err := chunker.Split(text, chunker.Config{MaxSize: 60, Overlap: 10})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// 每个块不超过上限
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 60)
	}
	// 块边界落在句子边界
	assert.True(t, strings.HasPrefix(chunks[0], "Première phrase"))
}

func TestSplitDeterminism(t *testing.T) {
	text := strings.Repeat("Une phrase de taille moyenne pour le test. ", 40)
	cfg := chunker.Config{MaxSize: 200, Overlap: 30}

	first, err := chunker.Split(text, cfg)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := chunker.Split(text, cfg)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSplitCoverage(t *testing.T) {
	// 无重叠时各块拼接应完整还原原文
	text := strings.Repeat("Phrase numéro un. Phrase numéro deux! Phrase numéro trois? ", 20)
	chunks, err := chunker.Split(text, chunker.Config{MaxSize: 100, Overlap: 0})
	require.NoError(t, err)

	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitOverlap(t *testing.T) {
	text := strings.Repeat("Encore une phrase de test pour le découpage. ", 30)
	chunks, err := chunker.Split(text, chunker.Config{MaxSize: 150, Overlap: 20})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// 每个后续块以上一块的尾部开头
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := string(prev[len(prev)-20:])
		assert.True(t, strings.HasPrefix(chunks[i], tail),
			"chunk %d should start with the tail of chunk %d", i, i-1)
	}
}

func TestSplitParagraphFallback(t *testing.T) {
	// 无句子标点，仅有段落边界
	para := strings.Repeat("mot ", 30)
	text := para + "\n\n" + para + "\n\n" + para
	chunks, err := chunker.Split(text, chunker.Config{MaxSize: 150, Overlap: 0})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitFixedWindowFallback(t *testing.T) {
	// 无句子标点也无段落边界
	text := strings.Repeat("x", 1000)
	chunks, err := chunker.Split(text, chunker.Config{MaxSize: 300, Overlap: 50})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 300)
	}

	// 步长为 MaxSize-Overlap，去掉重叠后应还原原文
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for i := 1; i < len(chunks); i++ {
		runes := []rune(chunks[i])
		rebuilt.WriteString(string(runes[50:]))
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestSplitOversizedSentenceKeptWhole(t *testing.T) {
	// 单个超长句子保持完整，不被截断
	longSentence := strings.Repeat("a", 400) + "."
	text := "Petite phrase. " + longSentence + " Autre petite phrase."
	chunks, err := chunker.Split(text, chunker.Config{MaxSize: 100, Overlap: 0})
	require.NoError(t, err)

	var found bool
	for _, c := range chunks {
		if strings.Contains(c, longSentence) {
			found = true
		}
	}
	assert.True(t, found, "the oversized sentence must survive intact in one chunk")
}
