package redis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jinford/policy-qa/internal/core/ingestion"
)

const (
	// keyPrefix はキャッシュキーの名前空間
	keyPrefix = "policyqa:embedding:"

	// DefaultTTL はキャッシュエントリの保持期間
	DefaultTTL = 24 * time.Hour
)

// CachedEmbedder はEmbedding生成をRedisでキャッシュするデコレータ
// 同一の質問文が繰り返し来た場合にAPI呼び出しを節約する。
// キャッシュ層の障害はEmbedding生成の失敗にしない
type CachedEmbedder struct {
	inner  ingestion.Embedder
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// CachedEmbedderOption は CachedEmbedder のオプション設定
type CachedEmbedderOption func(*CachedEmbedder)

// WithTTL はキャッシュ保持期間を上書きする
func WithTTL(ttl time.Duration) CachedEmbedderOption {
	return func(c *CachedEmbedder) {
		c.ttl = ttl
	}
}

// WithLogger は CachedEmbedder にロガーを設定する
func WithLogger(logger *slog.Logger) CachedEmbedderOption {
	return func(c *CachedEmbedder) {
		c.logger = logger
	}
}

// NewCachedEmbedder は新しい CachedEmbedder を作成する
func NewCachedEmbedder(inner ingestion.Embedder, client *redis.Client, opts ...CachedEmbedderOption) *CachedEmbedder {
	c := &CachedEmbedder{
		inner:  inner,
		client: client,
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Embed はキャッシュを参照し、ミス時のみ内側のEmbedderを呼び出す
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		if vector, decodeErr := decodeVector(cached); decodeErr == nil {
			return vector, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("embedding cache read failed", "error", err)
	}

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.client.Set(ctx, key, encodeVector(vector), c.ttl).Err(); err != nil {
		c.logger.Warn("embedding cache write failed", "error", err)
	}

	return vector, nil
}

// BatchEmbed はキャッシュを介さず内側のEmbedderに委譲する
// バッチはドキュメント取り込み時のみで、再利用の見込みが薄いため
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.BatchEmbed(ctx, texts)
}

// Dimension はベクトル次元数を返す
func (c *CachedEmbedder) Dimension() int {
	return c.inner.Dimension()
}

// cacheKey はモデル次元とテキストのハッシュからキーを組み立てる
func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s%d:%s", keyPrefix, c.inner.Dimension(), hex.EncodeToString(sum[:]))
}

// encodeVector はfloat32ベクトルをリトルエンディアンのバイト列に変換する
func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector はバイト列をfloat32ベクトルに復元する
func decodeVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector payload: %d bytes", len(data))
	}
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector, nil
}

// インターフェース実装の確認
var _ ingestion.Embedder = (*CachedEmbedder)(nil)
