package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// SettingsShowAction は検索設定の初期値を表示するコマンドのアクション
// 検索設定はプロセス内で保持されるため、CLIからはデフォルト値の確認のみ行う。
// 稼働中のサーバの設定はHTTP API経由で取得・変更する
func SettingsShowAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	cfg := appCtx.Settings.Get()
	fmt.Printf("類似度閾値: %.2f\n", cfg.SimilarityThreshold)
	fmt.Printf("最大検索件数: %d\n", cfg.MaxResults)
	fmt.Printf("コンテキストチャンク数: %d\n", cfg.ContextChunks)
	return nil
}
