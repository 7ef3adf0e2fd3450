package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/policy-qa/internal/infra/postgres"
)

// DBInitAction はデータベーススキーマを適用するコマンドのアクション
// DDLは冪等なので繰り返し実行しても安全
func DBInitAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := postgres.ApplySchema(ctx, appCtx.DB.Pool); err != nil {
		return err
	}

	fmt.Println("データベーススキーマを適用しました")
	return nil
}
