package embed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/comenta/internal/apiclient"
	"github.com/hitoshi/comenta/internal/config"
	"github.com/hitoshi/comenta/internal/metrics"
	"github.com/hitoshi/comenta/internal/security"
)

// Pool はドメイン+パスをキーとするエンジンの共有プール。
// 同じページへのリクエストは同じエンジンを共有し、一定時間参照されない
// エンジンはソケットごと閉じて回収する。
type Pool struct {
	cfg       *config.Config
	api       *apiclient.Client
	logger    *slog.Logger
	collector metrics.MetricsCollector
	sanitizer security.CommentSanitizerService

	mu      sync.Mutex
	engines map[string]*pooledEngine
}

type pooledEngine struct {
	engine   *Engine
	cancel   context.CancelFunc
	lastUsed time.Time
}

// NewPool はPool の新しいインスタンスを生成する。
// sanitizerはプールが生成する全エンジンで共有される。nilなら既定のものを使う。
func NewPool(cfg *config.Config, api *apiclient.Client, collector metrics.MetricsCollector, sanitizer security.CommentSanitizerService, logger *slog.Logger) *Pool {
	if sanitizer == nil {
		sanitizer = security.NewCommentSanitizer()
	}
	return &Pool{
		cfg:       cfg,
		api:       api,
		logger:    logger,
		collector: collector,
		sanitizer: sanitizer,
		engines:   make(map[string]*pooledEngine),
	}
}

// Acquire はページのエンジンを返す。未登録ならロードして登録する。
// エンジンのソケットはプールが持つコンテキストに束縛され、回収時に確実に閉じる。
func (p *Pool) Acquire(ctx context.Context, host, path string) (*Engine, error) {
	key := host + "\x00" + path

	p.mu.Lock()
	if pe, ok := p.engines[key]; ok {
		pe.lastUsed = time.Now()
		p.mu.Unlock()
		return pe.engine, nil
	}
	p.mu.Unlock()

	engine := NewEngine(p.cfg, p.api, p.collector, p.sanitizer, p.logger, host, path)
	engineCtx, cancel := context.WithCancel(context.Background())

	if err := engine.Load(engineCtx); err != nil {
		cancel()
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// ロード中に他のリクエストが先に登録した場合はそちらを使う
	if pe, ok := p.engines[key]; ok {
		cancel()
		pe.lastUsed = time.Now()
		return pe.engine, nil
	}
	p.engines[key] = &pooledEngine{
		engine:   engine,
		cancel:   cancel,
		lastUsed: time.Now(),
	}
	return engine, nil
}

// RunEviction はアイドルエンジンの回収ループを実行する。
// コンテキストのキャンセルで全エンジンを閉じて戻る。goroutineで起動する。
func (p *Pool) RunEviction(ctx context.Context) {
	interval := p.cfg.EngineIdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Close()
			return
		case <-ticker.C:
			p.evictIdle()
		}
	}
}

// evictIdle はTTLを超えてアイドルなエンジンを閉じて取り除く。
func (p *Pool) evictIdle() {
	cutoff := time.Now().Add(-p.cfg.EngineIdleTTL)

	p.mu.Lock()
	defer p.mu.Unlock()
	for key, pe := range p.engines {
		if pe.lastUsed.Before(cutoff) {
			pe.cancel()
			delete(p.engines, key)
			p.logger.Info("アイドルエンジンを回収しました",
				slog.String("host", pe.engine.host),
				slog.String("path", pe.engine.path),
			)
		}
	}
}

// Close は全エンジンのソケットを閉じてプールを空にする。
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, pe := range p.engines {
		pe.cancel()
		delete(p.engines, key)
	}
}

// Len は現在プールに登録されているエンジン数を返す。
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.engines)
}
