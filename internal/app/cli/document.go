package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/jinford/policy-qa/internal/core/ingestion"
)

// DocumentListAction はドキュメント一覧コマンドのアクション
func DocumentListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	docs, err := appCtx.Documents.List(ctx)
	if err != nil {
		return err
	}

	if len(docs) == 0 {
		fmt.Println("ドキュメントが登録されていません")
		return nil
	}

	fmt.Printf("%-36s  %-40s  %-8s  %s\n", "ID", "ファイル名", "チャンク数", "登録日時")
	for _, doc := range docs {
		fmt.Printf("%-36s  %-40s  %-8d  %s\n",
			doc.ID.String(),
			doc.FileName,
			doc.ChunkCount,
			doc.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return nil
}

// DocumentRegisterAction はドキュメント登録コマンドのアクション
// テキスト抽出済みのファイルを読み込み、チャンク化とEmbedding生成を行う
func DocumentRegisterAction(ctx context.Context, cmd *cli.Command) error {
	filePath := cmd.String("file")

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	fileName := cmd.String("name")
	if fileName == "" {
		fileName = filepath.Base(filePath)
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("ドキュメント登録を開始", "fileName", fileName, "bytes", len(content))

	result, err := appCtx.Documents.Register(ctx, ingestion.RegisterParams{
		FileName:      fileName,
		FileType:      filepath.Ext(filePath),
		FileSize:      int64(len(content)),
		ExtractedText: string(content),
	})
	if err != nil {
		slog.Error("ドキュメント登録に失敗しました", "error", err)
		return err
	}

	fmt.Printf("ドキュメントを登録しました: %s (チャンク数: %d)\n", result.Document.ID, result.TotalChunks)
	return nil
}

// DocumentDeleteAction はドキュメント削除コマンドのアクション
func DocumentDeleteAction(ctx context.Context, cmd *cli.Command) error {
	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("ドキュメントIDの形式が不正です: %w", err)
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Documents.Delete(ctx, id); err != nil {
		return err
	}

	fmt.Printf("ドキュメントを削除しました: %s\n", id)
	return nil
}

// DocumentReprocessAction はドキュメント再処理コマンドのアクション
func DocumentReprocessAction(ctx context.Context, cmd *cli.Command) error {
	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("ドキュメントIDの形式が不正です: %w", err)
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Documents.Reprocess(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("ドキュメントを再処理しました: %s (チャンク数: %d)\n", result.Document.ID, result.TotalChunks)
	return nil
}

// DocumentRepairAction はEmbedding修復コマンドのアクション
func DocumentRepairAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Documents.RepairEmbeddings(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Embedding修復が完了しました: 対象 %d 件, 修復 %d 件, 失敗 %d 件\n",
		result.TotalChunks, result.FixedCount, result.ErrorCount)
	return nil
}
