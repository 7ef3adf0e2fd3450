package answer

import (
	"fmt"
	"strings"
)

// BuildAnswerPrompt は生成呼び出しに渡すプロンプトを構築する
//
// 契約: 提供されたコンテキストの範囲内でのみ回答させ、根拠のセクションを
// 参照させ、情報が無い場合はその旨を明言させる
func BuildAnswerPrompt(question string, contextText string) string {
	var sb strings.Builder

	sb.WriteString("You are a senior Property & Casualty insurance underwriter with 20+ years of experience. ")
	sb.WriteString("A policyholder has asked you a question about their insurance coverage. ")
	sb.WriteString("Use ONLY the policy information provided below to answer their question.\n\n")

	sb.WriteString("IMPORTANT INSTRUCTIONS:\n")
	sb.WriteString("1. Answer the question directly and conversationally\n")
	sb.WriteString("2. Reference specific policy sections when relevant\n")
	sb.WriteString("3. If the policy information doesn't fully answer the question, say so clearly\n")
	sb.WriteString("4. Use simple language while being precise about insurance terms\n")
	sb.WriteString("5. If you find conflicting information, explain the differences\n")
	sb.WriteString("6. Always base your answer on the provided policy content\n\n")

	sb.WriteString(fmt.Sprintf("POLICYHOLDER QUESTION: %q\n\n", question))

	sb.WriteString("AVAILABLE POLICY INFORMATION:\n")
	sb.WriteString(contextText)
	sb.WriteString("\n\n")

	sb.WriteString("Please provide a comprehensive answer based on the policy information above:")

	return sb.String()
}

// noContentAnswer はチャンク検索が1件もヒットしなかった場合の定型回答
func noContentAnswer(question string) string {
	return fmt.Sprintf(
		"I couldn't find specific information in your uploaded insurance policies to answer: %q. "+
			"Try uploading more policy documents or asking about common insurance topics like coverage limits, deductibles, claims procedures, or exclusions.",
		question,
	)
}

// lowRelevanceAnswer はヒットはあったが閾値を超えるチャンクが無かった場合の定型回答
func lowRelevanceAnswer(question string) string {
	return fmt.Sprintf(
		"I found some content in your policies, but none was closely related to your question: %q. "+
			"Try rephrasing your question or asking about specific policy terms, coverage amounts, or claim procedures.",
		question,
	)
}
