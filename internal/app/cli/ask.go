package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	"github.com/jinford/policy-qa/internal/core/answer"
)

// AskAction は質問応答コマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	documentIDStr := cmd.String("document")
	userID := cmd.String("user")
	showSources := cmd.Bool("show-sources")

	question := cmd.Args().First()
	if question == "" {
		return fmt.Errorf("質問文を指定してください")
	}

	documentID := mo.None[uuid.UUID]()
	if documentIDStr != "" {
		id, err := uuid.Parse(documentIDStr)
		if err != nil {
			return fmt.Errorf("ドキュメントIDの形式が不正です: %w", err)
		}
		documentID = mo.Some(id)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("質問応答を開始", "question", question, "scoped", documentID.IsPresent())

	user := mo.None[string]()
	if userID != "" {
		user = mo.Some(userID)
	}

	result, err := appCtx.Composer.Ask(ctx, answer.AskParams{
		Question:   question,
		DocumentID: documentID,
		UserID:     user,
	})
	if err != nil {
		slog.Error("質問応答に失敗しました", "error", err)
		return err
	}

	printAnswer(result, showSources)

	slog.Info("質問応答が完了しました", "kind", result.Kind, "confidence", result.Confidence)
	return nil
}

// printAnswer は回答を標準出力に整形して表示する
func printAnswer(result *answer.Answer, showSources bool) {
	switch result.Kind {
	case answer.KindExpert:
		fmt.Println("=== エキスパート回答 ===")
		fmt.Println(result.ExpertAnswer)
		if result.ExpertExplanation != nil {
			fmt.Println("\n--- 補足説明 ---")
			fmt.Println(*result.ExpertExplanation)
		}
	case answer.KindExpertWithContext:
		fmt.Println("=== エキスパート回答 ===")
		fmt.Println(result.ExpertAnswer)
		if result.ExpertExplanation != nil {
			fmt.Println("\n--- 補足説明 ---")
			fmt.Println(*result.ExpertExplanation)
		}
		fmt.Println("\n--- AI補足回答 ---")
		fmt.Println(result.Answer)
	default:
		fmt.Println(result.Answer)
	}

	fmt.Printf("\n確信度: %s\n", result.Confidence)

	if showSources && len(result.Sources) > 0 {
		fmt.Println("\n--- 参照ソース ---")
		for i, source := range result.Sources {
			fmt.Printf("[%d] %s / %s (類似度: %d%%, 関連度: %s)\n",
				i+1,
				source.Document,
				source.Section,
				source.Similarity,
				source.Relevance,
			)
		}
	}
}
