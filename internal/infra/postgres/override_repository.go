package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/jinford/policy-qa/internal/core/override"
)

// uniqueViolationCode はPostgreSQLの一意制約違反のSQLSTATE
const uniqueViolationCode = "23505"

// overrideColumns はOverride取得系クエリで共通のSELECT句
const overrideColumns = `id, original_question, original_answer, corrected_answer, expert_explanation,
	expert_id, confidence_threshold, is_active, applies_to_all_documents, document_ids,
	times_used, last_used_at, created_at, updated_at`

// OverrideRepository はエキスパート補正の永続化を提供する
type OverrideRepository struct {
	pool *pgxpool.Pool
}

// NewOverrideRepository は新しいOverrideRepositoryを作成する
func NewOverrideRepository(pool *pgxpool.Pool) *OverrideRepository {
	return &OverrideRepository{pool: pool}
}

// SearchCandidates は適格なアクティブOverrideを類似度降順で最大Limit件取得する
// 閾値フロア（GREATEST(呼び出し側, Override自身)）と適用範囲をSQLで判定するため、
// 類似度上位に不適格な候補が並んでいても適格なOverrideがLIMITに隠れることはない
func (r *OverrideRepository) SearchCandidates(ctx context.Context, q override.CandidateQuery) ([]*override.Candidate, error) {
	documentIDs := q.DocumentIDs
	if documentIDs == nil {
		documentIDs = []uuid.UUID{}
	}

	query := fmt.Sprintf(`
		SELECT %s, 1 - (question_embedding <=> $1) AS similarity
		FROM expert_overrides
		WHERE is_active = true
		  AND question_embedding IS NOT NULL
		  AND 1 - (question_embedding <=> $1) >= GREATEST($2::float8, confidence_threshold)
		  AND (
		    applies_to_all_documents
		    OR document_ids && $3::uuid[]
		    OR (cardinality(document_ids) = 0 AND cardinality($3::uuid[]) = 0)
		  )
		ORDER BY question_embedding <=> $1
		LIMIT $4`, overrideColumns)

	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(q.QueryVector), q.Floor, documentIDs, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search override candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*override.Candidate
	for rows.Next() {
		var o override.Override
		var explanation pgtype.Text
		var lastUsed pgtype.Timestamptz
		var similarity float64
		if err := rows.Scan(
			&o.ID, &o.OriginalQuestion, &o.OriginalAnswer, &o.CorrectedAnswer, &explanation,
			&o.ExpertID, &o.ConfidenceThreshold, &o.IsActive, &o.AppliesToAllDocuments, &o.DocumentIDs,
			&o.TimesUsed, &lastUsed, &o.CreatedAt, &o.UpdatedAt, &similarity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan override candidate row: %w", err)
		}
		o.ExpertExplanation = PgtextToStringPtr(explanation)
		o.LastUsedAt = PgtypeToTimePtr(lastUsed)
		candidates = append(candidates, &override.Candidate{Override: &o, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate override candidate rows: %w", err)
	}

	return candidates, nil
}

// RecordUsage は利用記録を追記し、利用回数と最終利用時刻を原子的に更新する
func (r *OverrideRepository) RecordUsage(ctx context.Context, overrideID uuid.UUID, questionAsked string, similarity float64, userID mo.Option[string]) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO override_usage (override_id, question_asked, similarity_score, user_id) VALUES ($1, $2, $3, $4)`,
		overrideID, questionAsked, similarity, OptionStringToPgtext(userID),
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE expert_overrides SET times_used = times_used + 1, last_used_at = NOW() WHERE id = $1`,
		overrideID,
	)
	if err != nil {
		return fmt.Errorf("failed to update usage counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Create はOverrideと初版の履歴レコードを同一トランザクションで保存する
func (r *OverrideRepository) Create(ctx context.Context, o *override.Override, initialVersion *override.Version) (*override.Override, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	created := *o
	err = tx.QueryRow(ctx, `
		INSERT INTO expert_overrides (
			original_question, original_answer, corrected_answer, expert_explanation, expert_id,
			question_embedding, confidence_threshold, is_active, applies_to_all_documents, document_ids
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, times_used, last_used_at, created_at, updated_at`,
		o.OriginalQuestion, o.OriginalAnswer, o.CorrectedAnswer, StringPtrToPgtext(o.ExpertExplanation), o.ExpertID,
		pgvector.NewVector(o.QuestionEmbedding), o.ConfidenceThreshold, o.IsActive, o.AppliesToAllDocuments, o.DocumentIDs,
	).Scan(&created.ID, &created.TimesUsed, &created.LastUsedAt, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create override: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO override_versions (override_id, version_number, corrected_answer, expert_explanation, changed_by, change_reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		created.ID, initialVersion.VersionNumber, initialVersion.CorrectedAnswer,
		StringPtrToPgtext(initialVersion.ExpertExplanation), initialVersion.ChangedBy, initialVersion.ChangeReason,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create initial version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &created, nil
}

// Get はIDでOverrideを取得する
func (r *OverrideRepository) Get(ctx context.Context, id uuid.UUID) (mo.Option[*override.Override], error) {
	query := fmt.Sprintf(`SELECT %s FROM expert_overrides WHERE id = $1`, overrideColumns)

	o, err := scanOverride(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return mo.None[*override.Override](), nil
	}
	if err != nil {
		return mo.None[*override.Override](), fmt.Errorf("failed to get override: %w", err)
	}

	return mo.Some(o), nil
}

// List はアクティブ状態で絞り込み、作成日時の降順で返す
func (r *OverrideRepository) List(ctx context.Context, isActive bool) ([]*override.Override, error) {
	query := fmt.Sprintf(`SELECT %s FROM expert_overrides WHERE is_active = $1 ORDER BY created_at DESC`, overrideColumns)

	rows, err := r.pool.Query(ctx, query, isActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	var overrides []*override.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan override row: %w", err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate override rows: %w", err)
	}

	return overrides, nil
}

// Update は指定フィールドのみを更新し、更新後のOverrideを返す
func (r *OverrideRepository) Update(ctx context.Context, params override.UpdateParams) (*override.Override, error) {
	var docIDs []uuid.UUID
	if v, ok := params.DocumentIDs.Get(); ok {
		docIDs = v
		if docIDs == nil {
			docIDs = []uuid.UUID{}
		}
	}

	query := fmt.Sprintf(`
		UPDATE expert_overrides SET
			corrected_answer = COALESCE($2, corrected_answer),
			expert_explanation = COALESCE($3, expert_explanation),
			confidence_threshold = COALESCE($4, confidence_threshold),
			is_active = COALESCE($5, is_active),
			applies_to_all_documents = COALESCE($6, applies_to_all_documents),
			document_ids = COALESCE($7, document_ids),
			updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, overrideColumns)

	o, err := scanOverride(r.pool.QueryRow(ctx, query,
		params.ID,
		OptionStringToPgtext(params.CorrectedAnswer),
		OptionStringToPgtext(params.ExpertExplanation),
		OptionFloatToPgtype(params.ConfidenceThreshold),
		OptionBoolToPgtype(params.IsActive),
		OptionBoolToPgtype(params.AppliesToAllDocuments),
		docIDs,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, override.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update override: %w", err)
	}

	return o, nil
}

// maxVersionRetries はバージョン採番の一意制約違反に対するリトライ上限
const maxVersionRetries = 3

// AppendVersion は変更履歴を追記する。バージョン番号はINSERT内で最大+1を採番し、
// 同一Overrideへの同時更新が重複番号を生んだ場合は一意制約で弾いて再試行する
func (r *OverrideRepository) AppendVersion(ctx context.Context, v *override.Version) (*override.Version, error) {
	query := `
		INSERT INTO override_versions (override_id, version_number, corrected_answer, expert_explanation, changed_by, change_reason)
		SELECT $1, COALESCE(MAX(version_number), 0) + 1, $2, $3, $4, $5
		FROM override_versions
		WHERE override_id = $1
		RETURNING id, version_number, created_at`

	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		stored := *v
		err := r.pool.QueryRow(ctx, query,
			v.OverrideID, v.CorrectedAnswer, StringPtrToPgtext(v.ExpertExplanation), v.ChangedBy, v.ChangeReason,
		).Scan(&stored.ID, &stored.VersionNumber, &stored.CreatedAt)
		if err == nil {
			return &stored, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			continue
		}
		return nil, fmt.Errorf("failed to append version: %w", err)
	}

	return nil, fmt.Errorf("failed to append version: version number contention persisted after %d attempts", maxVersionRetries)
}

// ListVersions はOverrideの変更履歴をバージョン番号の降順で返す
func (r *OverrideRepository) ListVersions(ctx context.Context, overrideID uuid.UUID) ([]*override.Version, error) {
	query := `
		SELECT id, override_id, version_number, corrected_answer, expert_explanation, changed_by, change_reason, created_at
		FROM override_versions
		WHERE override_id = $1
		ORDER BY version_number DESC`

	rows, err := r.pool.Query(ctx, query, overrideID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*override.Version
	for rows.Next() {
		var v override.Version
		var explanation, reason pgtype.Text
		if err := rows.Scan(&v.ID, &v.OverrideID, &v.VersionNumber, &v.CorrectedAnswer, &explanation, &v.ChangedBy, &reason, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		v.ExpertExplanation = PgtextToStringPtr(explanation)
		if reason.Valid {
			v.ChangeReason = reason.String
		}
		versions = append(versions, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate version rows: %w", err)
	}

	return versions, nil
}

// ListUsage はOverrideの利用記録を新しい順に最大limit件返す
func (r *OverrideRepository) ListUsage(ctx context.Context, overrideID uuid.UUID, limit int) ([]*override.UsageRecord, error) {
	query := `
		SELECT id, override_id, question_asked, similarity_score, user_id, created_at
		FROM override_usage
		WHERE override_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, overrideID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	defer rows.Close()

	var records []*override.UsageRecord
	for rows.Next() {
		var rec override.UsageRecord
		var userID pgtype.Text
		if err := rows.Scan(&rec.ID, &rec.OverrideID, &rec.QuestionAsked, &rec.SimilarityScore, &userID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		rec.UserID = PgtextToStringPtr(userID)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage rows: %w", err)
	}

	return records, nil
}

// scanOverride はOverrideの共通カラムを読み取る
func scanOverride(row pgx.Row) (*override.Override, error) {
	var o override.Override
	var explanation pgtype.Text
	var lastUsed pgtype.Timestamptz
	if err := row.Scan(
		&o.ID, &o.OriginalQuestion, &o.OriginalAnswer, &o.CorrectedAnswer, &explanation,
		&o.ExpertID, &o.ConfidenceThreshold, &o.IsActive, &o.AppliesToAllDocuments, &o.DocumentIDs,
		&o.TimesUsed, &lastUsed, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	o.ExpertExplanation = PgtextToStringPtr(explanation)
	o.LastUsedAt = PgtypeToTimePtr(lastUsed)
	return &o, nil
}

// インターフェース実装の確認
var _ override.Repository = (*OverrideRepository)(nil)
