// Package chunker 提供文档分块能力。
// 分块策略按优先级依次尝试：句子边界、段落边界、固定窗口。
package chunker

import (
	"strings"
	"unicode"

	apierrors "github.com/sidi-cnm/supnum-backend/pkg/utils/errors"
)

// Config 分块配置。
type Config struct {
	// MaxSize 单个块的最大字符数（Unicode 字符）。
	MaxSize int

	// Overlap 相邻块之间的重叠字符数，必须小于 MaxSize。
	Overlap int
}

// Validate 校验分块配置。
func (c Config) Validate() error {
	if c.MaxSize <= 0 {
		return apierrors.ErrInvalidConfig.WithMessagef("max size must be positive, got %d", c.MaxSize)
	}
	if c.Overlap < 0 {
		return apierrors.ErrInvalidConfig.WithMessagef("overlap cannot be negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.MaxSize {
		return apierrors.ErrInvalidConfig.WithMessagef("overlap (%d) must be smaller than max size (%d)", c.Overlap, c.MaxSize)
	}
	return nil
}

// Split 将文本分割成有序的重叠块。
// 输入为空或仅含空白字符时返回 InvalidInput。
// 相同输入与配置下输出完全一致，重建索引依赖这一确定性。
func Split(text string, cfg Config) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, apierrors.ErrInvalidInput.WithMessage("document text is empty")
	}

	runes := []rune(text)
	if len(runes) <= cfg.MaxSize {
		return []string{text}, nil
	}

	// 优先按句子边界分块
	if sentences := splitSentences(text); len(sentences) > 1 {
		return packUnits(sentences, cfg), nil
	}

	// 无句子标点时退回段落边界
	if paragraphs := splitParagraphs(text); len(paragraphs) > 1 {
		return packUnits(paragraphs, cfg), nil
	}

	// 无任何边界时退回固定字符窗口
	return fixedWindow(runes, cfg), nil
}

// splitSentences 按句子边界切分文本，分隔符保留在前一句末尾，
// 保证所有句子拼接后与原文完全一致。
func splitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isSentenceEnd(runes[i]) {
			continue
		}
		// 吸收紧随其后的标点与空白
		j := i + 1
		for j < len(runes) && (isSentenceEnd(runes[j]) || unicode.IsSpace(runes[j])) {
			j++
		}
		sentences = append(sentences, string(runes[start:j]))
		start = j
		i = j - 1
	}

	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

// splitParagraphs 按空行切分文本，分隔空行保留在前一段末尾。
func splitParagraphs(text string) []string {
	runes := []rune(text)
	var paragraphs []string
	start := 0

	for i := 0; i < len(runes)-1; i++ {
		if runes[i] != '\n' {
			continue
		}
		// 空行边界：换行后仅有空白直至下一个换行
		j := i + 1
		for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\r') {
			j++
		}
		if j >= len(runes) || runes[j] != '\n' {
			continue
		}
		// 吸收连续空行
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		paragraphs = append(paragraphs, string(runes[start:j]))
		start = j
		i = j - 1
	}

	if start < len(runes) {
		paragraphs = append(paragraphs, string(runes[start:]))
	}
	return paragraphs
}

// packUnits 将文本单元贪心打包成块。
// 单个超长单元保持完整，不做截断，仅对该块放宽大小限制。
func packUnits(units []string, cfg Config) []string {
	var chunks []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, string(current))
		}
	}

	for _, unit := range units {
		unitRunes := []rune(unit)

		if len(current) > 0 && len(current)+len(unitRunes) > cfg.MaxSize {
			flush()

			// 新块以上一块尾部 overlap 字符开头，超长单元不再附加前缀
			prev := []rune(chunks[len(chunks)-1])
			overlapLen := cfg.Overlap
			if room := cfg.MaxSize - len(unitRunes); room < overlapLen {
				overlapLen = room
			}
			if overlapLen < 0 {
				overlapLen = 0
			}
			if overlapLen > len(prev) {
				overlapLen = len(prev)
			}
			current = append([]rune(nil), prev[len(prev)-overlapLen:]...)
		}

		current = append(current, unitRunes...)
	}
	flush()

	return chunks
}

// fixedWindow 固定字符窗口切分，步长为 MaxSize-Overlap。
func fixedWindow(runes []rune, cfg Config) []string {
	var chunks []string
	step := cfg.MaxSize - cfg.Overlap

	for i := 0; i < len(runes); i += step {
		end := i + cfg.MaxSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
