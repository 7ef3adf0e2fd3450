package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/policy-qa/internal/app/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// フラグはコマンドごとに独立したインスタンスを持たせる
	envFlag := func() *cli.StringFlag {
		return &cli.StringFlag{
			Name:  "env",
			Usage: "環境変数ファイルパス",
			Value: ".env",
		}
	}

	app := &cli.Command{
		Name:  "policy-qa",
		Usage: "保険約款ドキュメント向け 質問応答・エキスパート補正システム",
		Commands: []*cli.Command{
			{
				Name:      "ask",
				Usage:     "約款に関する質問に回答",
				ArgsUsage: "<質問文>",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "document",
						Usage: "対象ドキュメントID（省略時は全ドキュメント）",
					},
					&cli.StringFlag{
						Name:  "user",
						Usage: "質問者ID（利用記録に残す）",
					},
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "参照ソースも表示",
					},
				},
				Action: appcli.AskAction,
			},
			{
				Name:  "document",
				Usage: "ドキュメント管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "ドキュメント一覧を表示",
						Flags:  []cli.Flag{envFlag()},
						Action: appcli.DocumentListAction,
					},
					{
						Name:  "register",
						Usage: "抽出済みテキストファイルからドキュメントを登録",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "file",
								Usage:    "テキストファイルパス",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "name",
								Usage: "ドキュメント表示名（省略時はファイル名）",
							},
						},
						Action: appcli.DocumentRegisterAction,
					},
					{
						Name:  "delete",
						Usage: "ドキュメントとそのチャンクを削除",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ドキュメントID",
								Required: true,
							},
						},
						Action: appcli.DocumentDeleteAction,
					},
					{
						Name:  "reprocess",
						Usage: "保存済みテキストからチャンクを作り直す",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ドキュメントID",
								Required: true,
							},
						},
						Action: appcli.DocumentReprocessAction,
					},
					{
						Name:   "repair",
						Usage:  "欠落・次元不一致のEmbeddingを修復",
						Flags:  []cli.Flag{envFlag()},
						Action: appcli.DocumentRepairAction,
					},
				},
			},
			{
				Name:  "override",
				Usage: "エキスパート補正管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "エキスパート補正一覧を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.BoolFlag{
								Name:  "inactive",
								Usage: "無効化済みの補正を表示",
							},
						},
						Action: appcli.OverrideListAction,
					},
					{
						Name:  "create",
						Usage: "新しいエキスパート補正を作成",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "question",
								Usage:    "元の質問文",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "original-answer",
								Usage:    "AIが生成した元の回答",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "corrected-answer",
								Usage:    "エキスパートによる補正後の回答",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "explanation",
								Usage: "補足説明",
							},
							&cli.StringFlag{
								Name:     "expert",
								Usage:    "エキスパートID",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "threshold",
								Usage: "マッチに必要な類似度下限 (0-1, 省略時は0.85)",
							},
							&cli.BoolFlag{
								Name:  "all-documents",
								Usage: "全ドキュメントに適用",
							},
							&cli.StringFlag{
								Name:  "document-ids",
								Usage: "適用対象ドキュメントID (カンマ区切り)",
							},
						},
						Action: appcli.OverrideCreateAction,
					},
					{
						Name:  "show",
						Usage: "エキスパート補正の詳細と変更履歴を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "id",
								Usage:    "補正ID",
								Required: true,
							},
						},
						Action: appcli.OverrideShowAction,
					},
					{
						Name:  "update",
						Usage: "エキスパート補正を部分更新（回答変更時は履歴に追記）",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "id",
								Usage:    "補正ID",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "corrected-answer",
								Usage: "補正後の回答（変更時のみ）",
							},
							&cli.StringFlag{
								Name:  "explanation",
								Usage: "補足説明",
							},
							&cli.StringFlag{
								Name:  "threshold",
								Usage: "マッチに必要な類似度下限 (0-1)",
							},
							&cli.StringFlag{
								Name:  "all-documents",
								Usage: "全ドキュメントに適用するか (true/false)",
							},
							&cli.StringFlag{
								Name:  "document-ids",
								Usage: "適用対象ドキュメントID (カンマ区切り)",
							},
							&cli.StringFlag{
								Name:  "changed-by",
								Usage: "変更者（省略時はUnknown）",
							},
							&cli.StringFlag{
								Name:  "reason",
								Usage: "変更理由（省略時はUpdated）",
							},
						},
						Action: appcli.OverrideUpdateAction,
					},
					{
						Name:  "versions",
						Usage: "エキスパート補正の変更履歴を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "id",
								Usage:    "補正ID",
								Required: true,
							},
						},
						Action: appcli.OverrideVersionsAction,
					},
					{
						Name:  "deactivate",
						Usage: "エキスパート補正を無効化",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "id",
								Usage:    "補正ID",
								Required: true,
							},
						},
						Action: appcli.OverrideDeactivateAction,
					},
				},
			},
			{
				Name:  "settings",
				Usage: "検索設定コマンド",
				Commands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "検索設定の初期値を表示",
						Flags:  []cli.Flag{envFlag()},
						Action: appcli.SettingsShowAction,
					},
				},
			},
			{
				Name:  "db",
				Usage: "データベース管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "データベーススキーマを適用",
						Flags:  []cli.Flag{envFlag()},
						Action: appcli.DBInitAction,
					},
				},
			},
			{
				Name:  "server",
				Usage: "サーバ関連コマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTPサーバを起動",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "port",
								Usage: "HTTPポート（省略時は環境変数またはデフォルトの8080）",
							},
						},
						Action: appcli.ServerStartAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
