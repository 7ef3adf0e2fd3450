package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	"github.com/jinford/policy-qa/internal/core/override"
)

// OverrideListAction はOverride一覧コマンドのアクション
func OverrideListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	overrides, err := appCtx.Overrides.List(ctx, !cmd.Bool("inactive"))
	if err != nil {
		return err
	}

	if len(overrides) == 0 {
		fmt.Println("エキスパート補正が登録されていません")
		return nil
	}

	for _, o := range overrides {
		fmt.Printf("ID: %s\n", o.ID)
		fmt.Printf("  質問: %s\n", o.OriginalQuestion)
		fmt.Printf("  閾値: %.2f  利用回数: %d  有効: %t\n", o.ConfidenceThreshold, o.TimesUsed, o.IsActive)
	}
	return nil
}

// OverrideCreateAction はOverride作成コマンドのアクション
func OverrideCreateAction(ctx context.Context, cmd *cli.Command) error {
	documentIDs, err := parseDocumentIDs(cmd.String("document-ids"))
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	explanation := mo.None[string]()
	if v := cmd.String("explanation"); v != "" {
		explanation = mo.Some(v)
	}

	threshold := mo.None[float64]()
	if v := cmd.String("threshold"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("閾値の形式が不正です: %w", err)
		}
		threshold = mo.Some(parsed)
	}

	created, err := appCtx.Overrides.Create(ctx, override.CreateParams{
		OriginalQuestion:      cmd.String("question"),
		OriginalAnswer:        cmd.String("original-answer"),
		CorrectedAnswer:       cmd.String("corrected-answer"),
		ExpertExplanation:     explanation,
		ExpertID:              cmd.String("expert"),
		ConfidenceThreshold:   threshold,
		AppliesToAllDocuments: cmd.Bool("all-documents"),
		DocumentIDs:           documentIDs,
	})
	if err != nil {
		return err
	}

	fmt.Printf("エキスパート補正を作成しました: %s\n", created.ID)
	return nil
}

// OverrideShowAction はOverride詳細表示コマンドのアクション
func OverrideShowAction(ctx context.Context, cmd *cli.Command) error {
	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("IDの形式が不正です: %w", err)
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	o, err := appCtx.Overrides.Get(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("ID: %s\n", o.ID)
	fmt.Printf("質問: %s\n", o.OriginalQuestion)
	fmt.Printf("元の回答: %s\n", o.OriginalAnswer)
	fmt.Printf("補正後の回答: %s\n", o.CorrectedAnswer)
	if o.ExpertExplanation != nil {
		fmt.Printf("補足説明: %s\n", *o.ExpertExplanation)
	}
	fmt.Printf("エキスパートID: %s\n", o.ExpertID)
	fmt.Printf("閾値: %.2f  有効: %t  全ドキュメント適用: %t\n", o.ConfidenceThreshold, o.IsActive, o.AppliesToAllDocuments)
	fmt.Printf("利用回数: %d\n", o.TimesUsed)
	if o.LastUsedAt != nil {
		fmt.Printf("最終利用: %s\n", o.LastUsedAt.Format("2006-01-02 15:04:05"))
	}

	versions, err := appCtx.Overrides.ListVersions(ctx, id)
	if err != nil {
		return err
	}
	if len(versions) > 0 {
		fmt.Println("\n--- 変更履歴 ---")
		for _, v := range versions {
			fmt.Printf("v%d (%s) by %s: %s\n",
				v.VersionNumber,
				v.CreatedAt.Format("2006-01-02"),
				v.ChangedBy,
				v.ChangeReason,
			)
		}
	}
	return nil
}

// overrideUpdateInput はフラグから受け取るOverride更新入力
type overrideUpdateInput struct {
	id              string
	correctedAnswer string
	explanation     string
	threshold       string
	documentIDs     string
	allDocuments    string // "true" / "false"、空は変更なし
	changedBy       string
	reason          string
}

// buildOverrideUpdateParams は更新入力を検証して部分更新パラメータに変換する
// 空のフィールドは「変更なし」として扱う
func buildOverrideUpdateParams(in overrideUpdateInput) (override.UpdateParams, error) {
	id, err := uuid.Parse(in.id)
	if err != nil {
		return override.UpdateParams{}, fmt.Errorf("IDの形式が不正です: %w", err)
	}

	params := override.UpdateParams{
		ID:           id,
		ChangedBy:    in.changedBy,
		ChangeReason: in.reason,
	}

	if in.correctedAnswer != "" {
		params.CorrectedAnswer = mo.Some(in.correctedAnswer)
	}
	if in.explanation != "" {
		params.ExpertExplanation = mo.Some(in.explanation)
	}
	if in.threshold != "" {
		parsed, err := strconv.ParseFloat(in.threshold, 64)
		if err != nil {
			return override.UpdateParams{}, fmt.Errorf("閾値の形式が不正です: %w", err)
		}
		params.ConfidenceThreshold = mo.Some(parsed)
	}
	if in.documentIDs != "" {
		ids, err := parseDocumentIDs(in.documentIDs)
		if err != nil {
			return override.UpdateParams{}, err
		}
		params.DocumentIDs = mo.Some(ids)
	}
	if in.allDocuments != "" {
		parsed, err := strconv.ParseBool(in.allDocuments)
		if err != nil {
			return override.UpdateParams{}, fmt.Errorf("all-documentsの形式が不正です: %w", err)
		}
		params.AppliesToAllDocuments = mo.Some(parsed)
	}

	return params, nil
}

// OverrideUpdateAction はOverride部分更新コマンドのアクション
func OverrideUpdateAction(ctx context.Context, cmd *cli.Command) error {
	params, err := buildOverrideUpdateParams(overrideUpdateInput{
		id:              cmd.String("id"),
		correctedAnswer: cmd.String("corrected-answer"),
		explanation:     cmd.String("explanation"),
		threshold:       cmd.String("threshold"),
		documentIDs:     cmd.String("document-ids"),
		allDocuments:    cmd.String("all-documents"),
		changedBy:       cmd.String("changed-by"),
		reason:          cmd.String("reason"),
	})
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	updated, err := appCtx.Overrides.Update(ctx, params)
	if err != nil {
		return err
	}

	fmt.Printf("エキスパート補正を更新しました: %s\n", updated.ID)
	return nil
}

// OverrideVersionsAction はOverride変更履歴表示コマンドのアクション
func OverrideVersionsAction(ctx context.Context, cmd *cli.Command) error {
	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("IDの形式が不正です: %w", err)
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	versions, err := appCtx.Overrides.ListVersions(ctx, id)
	if err != nil {
		return err
	}

	if len(versions) == 0 {
		fmt.Println("変更履歴がありません")
		return nil
	}

	for _, v := range versions {
		fmt.Printf("v%d (%s) by %s: %s\n",
			v.VersionNumber,
			v.CreatedAt.Format("2006-01-02 15:04:05"),
			v.ChangedBy,
			v.ChangeReason,
		)
		fmt.Printf("  補正後の回答: %s\n", v.CorrectedAnswer)
		if v.ExpertExplanation != nil {
			fmt.Printf("  補足説明: %s\n", *v.ExpertExplanation)
		}
	}
	return nil
}

// OverrideDeactivateAction はOverride無効化コマンドのアクション
// レコードは削除せず、マッチ対象から外すだけ
func OverrideDeactivateAction(ctx context.Context, cmd *cli.Command) error {
	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("IDの形式が不正です: %w", err)
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	_, err = appCtx.Overrides.Update(ctx, override.UpdateParams{
		ID:       id,
		IsActive: mo.Some(false),
	})
	if err != nil {
		return err
	}

	fmt.Printf("エキスパート補正を無効化しました: %s\n", id)
	return nil
}

// parseDocumentIDs はカンマ区切りのUUID列をパースする
func parseDocumentIDs(value string) ([]uuid.UUID, error) {
	if value == "" {
		return nil, nil
	}

	parts := strings.Split(value, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, part := range parts {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("ドキュメントIDの形式が不正です: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
