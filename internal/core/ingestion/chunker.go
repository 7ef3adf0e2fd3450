package ingestion

import (
	"regexp"
	"strings"
)

// DefaultMaxChunkSize はチャンク1件の最大文字数
const DefaultMaxChunkSize = 1000

// sentencePattern は文境界の検出パターン。終端記号までを1文として切り出す
var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)

// TextChunk は分割されたテキスト片を表す
type TextChunk struct {
	Content string
	Index   int
}

// SplitTextIntoChunks はテキストを文境界を保ったままチャンクに分割する
// 1チャンクがmaxChunkSizeを超えないよう文単位で詰めていく
func SplitTextIntoChunks(text string, maxChunkSize int) []TextChunk {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}

	sentences := sentencePattern.FindAllString(text, -1)
	if len(sentences) == 0 {
		// 終端記号を含まないテキストは分割せず1チャンクとして扱う
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []TextChunk{{Content: trimmed, Index: 0}}
	}

	var chunks []TextChunk
	var current strings.Builder
	index := 0

	for _, sentence := range sentences {
		s := strings.TrimSpace(sentence)
		if s == "" {
			continue
		}

		addition := len(s)
		if current.Len() > 0 {
			addition++ // 文間の区切りスペース
		}

		if current.Len() > 0 && current.Len()+addition > maxChunkSize {
			chunks = append(chunks, TextChunk{
				Content: current.String(),
				Index:   index,
			})
			index++
			current.Reset()
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(s)
	}

	if current.Len() > 0 {
		chunks = append(chunks, TextChunk{
			Content: current.String(),
			Index:   index,
		})
	}

	return chunks
}
