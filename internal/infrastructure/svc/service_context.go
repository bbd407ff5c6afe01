package svc

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"xprice/internal/application/port"
	"xprice/internal/application/usecase/pricing"
	"xprice/internal/domain"
	"xprice/internal/infrastructure/clock"
	"xprice/internal/infrastructure/config"
	"xprice/internal/infrastructure/exchange"
	"xprice/internal/infrastructure/exchange/marketwatch"
	"xprice/internal/infrastructure/feed"
	"xprice/internal/infrastructure/pricefeed"
	"xprice/internal/infrastructure/storage/composite"
	pgrepo "xprice/internal/infrastructure/storage/postgres"
	redisrepo "xprice/internal/infrastructure/storage/redis"
	sqliterepo "xprice/internal/infrastructure/storage/sqlite"
	"xprice/internal/interfaces/console"
)

const (
	consoleSubscriber = "console"
	mirrorSubscriber  = "mirror"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层（第一层初始化）
	redisClient *redisclient.Client
	redisRepo   *redisrepo.Repo
	sqliteRepo  *sqliterepo.Repo
	pgRepo      *pgrepo.Repo
	httpClient  *marketwatch.Client

	// 输出端口
	Sink     port.Sink
	Notifier port.Notifier

	// 参考价链路：redis -> sql -> http
	reference *composite.Reference
	mirror    *composite.Mirror

	// 应用业务组件
	engine    *pricing.Engine
	refresher *pricing.Refresher
	feeds     *feed.Manager

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Sink:        console.NewSink(),
		closerChain: make([]func() error, 0),
	}

	if err := sc.initializeComponents(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 按依赖顺序初始化
func (sc *ServiceContext) initializeComponents() error {
	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInitFailed, err)
	}
	sc.initializeNotifier()
	sc.initializePricing()
	if err := sc.initializeFeed(); err != nil {
		return err
	}
	if err := sc.initializeSubscribers(); err != nil {
		return err
	}

	log.Info().
		Str("reference", sc.reference.Name()).
		Int("mirrors", sc.mirror.Len()).
		Bool("feed", sc.feeds != nil).
		Msg("✓ All components initialized")
	return nil
}

// initializeStorage 初始化存储层 (Redis / SQLite / Postgres / HTTP)
func (sc *ServiceContext) initializeStorage() error {
	if sc.Config.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
	}
	if sc.Config.SQLite.Enabled {
		if err := sc.initSQLite(); err != nil {
			return fmt.Errorf("sqlite initialization failed: %w", err)
		}
	}
	if sc.Config.Postgres.Enabled {
		if err := sc.initPostgres(); err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
	}
	if sc.Config.Reference.HTTPBaseURL != "" {
		timeout := time.Duration(sc.Config.Reference.HTTPTimeoutSec) * time.Second
		sc.httpClient = marketwatch.NewClient(sc.Config.Reference.HTTPBaseURL, timeout)
	}

	// nil 值在 NewReference / NewMirror 中被过滤
	var sources []port.ReferencePriceSource
	var mirrors []port.BookMirror
	if sc.redisRepo != nil {
		sources = append(sources, sc.redisRepo)
		mirrors = append(mirrors, sc.redisRepo)
	}
	if sc.sqliteRepo != nil {
		sources = append(sources, sc.sqliteRepo)
	}
	if sc.pgRepo != nil {
		sources = append(sources, sc.pgRepo)
	}
	if sc.httpClient != nil {
		sources = append(sources, sc.httpClient)
	}
	sc.reference = composite.NewReference(sources...)
	sc.mirror = composite.NewMirror(mirrors...)

	if sc.reference.Len() == 0 {
		log.Warn().Msg("no reference price source configured, fallbacks only")
	}
	return nil
}

// initRedis 初始化 Redis 连接
func (sc *ServiceContext) initRedis() error {
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     sc.Config.Redis.Addr,
		Password: sc.Config.Redis.Password,
		DB:       sc.Config.Redis.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	sc.redisClient = rdb
	sc.redisRepo = redisrepo.New(rdb, redisrepo.Options{
		Prefix:         sc.Config.Redis.Prefix,
		TTL:            time.Duration(sc.Config.Redis.TTLSeconds) * time.Second,
		MarketWatchKey: sc.Config.Redis.MarketWatchKey,
		HighLowChannel: sc.Config.Redis.HighLowChannel,
		AlertChannel:   sc.Config.Redis.AlertChannel,
		AssetIDs:       sc.Config.Reference.AssetIDs,
	})

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", sc.Config.Redis.Addr).
		Int("db", sc.Config.Redis.DB).
		Msg("✓ Redis initialized")
	return nil
}

// initSQLite 初始化 SQLite 数据库
func (sc *ServiceContext) initSQLite() error {
	repo, err := sqliterepo.New(sc.Config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("sqlite repo creation failed: %w", err)
	}
	sc.sqliteRepo = repo

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().
		Str("path", sc.Config.SQLite.Path).
		Msg("✓ SQLite initialized")
	return nil
}

func (sc *ServiceContext) initPostgres() error {
	repo, err := pgrepo.New(sc.Config.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres repo creation failed: %w", err)
	}
	sc.pgRepo = repo

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("✓ Postgres initialized")
	return nil
}

// initializeNotifier 告警写日志，启用 redis 时同时推送
func (sc *ServiceContext) initializeNotifier() {
	var redisNotifier port.Notifier
	if sc.redisRepo != nil {
		redisNotifier = sc.redisRepo
	}
	sc.Notifier = console.NewMultiNotifier(console.NewLogNotifier(), redisNotifier)
}

func (sc *ServiceContext) initializePricing() {
	cfg := sc.Config
	assets := domain.NewAssets(cfg.Pricing.Quotes, cfg.Pricing.Aliases)
	book := domain.NewBook(assets)

	sc.engine = pricing.NewEngine(pricing.EngineDeps{
		Book:        book,
		Aggregator:  pricing.NewAggregator(book, clock.Real{}),
		CrossRate:   domain.NewCrossRate(cfg.Pricing.CrossPriority, cfg.Pricing.CrossFallback),
		SpreadRatio: cfg.SpreadRatio(),
		Anchor: pricing.Anchor{
			Base:        cfg.Anchor.Base,
			Quote:       cfg.Anchor.Quote,
			Equivalents: cfg.Anchor.Equivalents,
		},
	})

	refAssets := make([]pricing.ReferenceAsset, 0, len(cfg.Reference.Assets))
	for _, a := range cfg.Reference.Assets {
		refAssets = append(refAssets, pricing.ReferenceAsset{
			Base:     a.Base,
			Fallback: decimal.RequireFromString(a.Fallback),
		})
	}

	var source port.ReferencePriceSource
	if sc.reference.Len() > 0 {
		source = sc.reference
	}
	sc.refresher = pricing.NewRefresher(pricing.RefreshDeps{
		Engine:         sc.engine,
		Source:         source,
		Watch:          sc.marketWatchSource(),
		Notifier:       sc.Notifier,
		Assets:         refAssets,
		AnchorFallback: cfg.AnchorFallback(),
		ReferenceEvery: time.Duration(cfg.Reference.RefreshSec) * time.Second,
		AnchorEvery:    time.Duration(cfg.Anchor.RefreshSec) * time.Second,
		MaxAge:         time.Duration(cfg.Reference.MaxAgeDays) * 24 * time.Hour,
	})

	sc.closerChain = append(sc.closerChain, func() error {
		sc.engine.Aggregator().Close()
		return nil
	})
}

// marketWatchSource 启动预热优先用 HTTP 全量列表，其次本地 SQLite
func (sc *ServiceContext) marketWatchSource() port.MarketWatchSource {
	if !sc.Config.Reference.Bootstrap {
		return nil
	}
	if sc.httpClient != nil {
		return sc.httpClient
	}
	if sc.sqliteRepo != nil {
		return sc.sqliteRepo
	}
	return nil
}

func (sc *ServiceContext) initializeFeed() error {
	fc := sc.Config.Feed
	if !fc.Enabled {
		log.Warn().Msg("feed disabled by config")
		return nil
	}
	if len(fc.Symbols) == 0 {
		return ErrNoSymbols
	}

	opts, err := pricefeed.Resolve(pricefeed.Spec{
		Name:              fc.Name,
		URLTemplate:       fc.URLTemplate,
		StreamTemplate:    fc.StreamTemplate,
		SubscribeTemplate: fc.SubscribeTemplate,
		LowerCaseSymbol:   fc.LowerCaseSymbol,
		Aliases:           sc.Config.Pricing.Aliases,
	})
	if err != nil {
		return fmt.Errorf("feed initialization failed: %w", err)
	}
	opts.MaxRetries = fc.MaxRetries
	opts.RetryDelay = sc.Config.RetryDelay()
	opts.DialTimeout = time.Duration(fc.DialTimeoutSec) * time.Second
	opts.PingEvery = time.Duration(fc.PingEverySec) * time.Second
	opts.ReadTimeout = time.Duration(fc.ReadTimeoutSec) * time.Second

	normalizer := exchange.NewTickerNormalizer(sc.engine.Assets())
	sc.feeds = feed.NewManager(opts, normalizer, sc.engine, sc.Notifier)
	sc.feeds.Add(fc.Symbols...)
	return nil
}

// initializeSubscribers 内置的窗口订阅者：控制台看板和 redis 镜像
func (sc *ServiceContext) initializeSubscribers() error {
	if sc.Config.Console.Enabled {
		board := console.NewBoard(console.NewFormatter(sc.Config.Console.Symbols), sc.Sink)
		every := time.Duration(sc.Config.Console.IntervalSec) * time.Second
		if err := sc.engine.SubscribeHighLowInterval(consoleSubscriber, every, board.Handle); err != nil {
			return fmt.Errorf("console subscriber: %w", err)
		}
	}

	if sc.mirror.Len() > 0 {
		every := time.Duration(sc.Config.Redis.MirrorEverySec) * time.Second
		if err := sc.engine.SubscribeHighLowInterval(mirrorSubscriber, every, sc.mirrorWindow); err != nil {
			return fmt.Errorf("mirror subscriber: %w", err)
		}
	}
	return nil
}

// mirrorWindow 同步 book 并发布刚结束的窗口
func (sc *ServiceContext) mirrorWindow(snap domain.HighLowSnapshot) {
	ctx, cancel := context.WithTimeout(sc.Ctx, 3*time.Second)
	defer cancel()

	if err := sc.mirror.UpsertTickers(ctx, sc.engine.Tickers()); err != nil {
		log.Error().Err(err).Msg("mirror book failed")
	}
	if err := sc.mirror.PublishHighLow(ctx, mirrorSubscriber, snap); err != nil {
		log.Error().Err(err).Msg("publish highlow failed")
	}
}

// Engine 价格引擎（Price / HighLowPrice / SubscribeHighLowInterval）
func (sc *ServiceContext) Engine() *pricing.Engine { return sc.engine }

func (sc *ServiceContext) Refresher() *pricing.Refresher { return sc.refresher }

// Feeds 行情源未启用时为 nil
func (sc *ServiceContext) Feeds() *feed.Manager { return sc.feeds }

func (sc *ServiceContext) Reference() *composite.Reference { return sc.reference }

// Run 预热 book、启动定时刷新并运行行情源，直到 ctx 取消
func (sc *ServiceContext) Run(ctx context.Context) error {
	if n, err := sc.refresher.Bootstrap(ctx); err != nil {
		log.Warn().Err(err).Msg("bootstrap failed, starting with empty book")
	} else if n > 0 {
		log.Info().Int("entries", n).Msg("✓ Book bootstrapped")
	}

	if err := sc.refresher.Start(ctx); err != nil {
		return err
	}

	if sc.feeds == nil {
		<-ctx.Done()
		return nil
	}

	err := sc.feeds.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	// 所有交易对都已放弃，book 保持最后的值，参考价刷新继续
	log.Error().Err(err).Msg("all feed connections exhausted")
	<-ctx.Done()
	return err
}

// Snapshot 把 HTTP 全量行情写入已启用的 SQL 存储，供离线部署使用
func (sc *ServiceContext) Snapshot(ctx context.Context) (int, error) {
	if sc.httpClient == nil {
		return 0, errors.New("reference.http_base_url not configured")
	}
	var writers []marketPriceWriter
	if sc.sqliteRepo != nil {
		writers = append(writers, sc.sqliteRepo)
	}
	if sc.pgRepo != nil {
		writers = append(writers, sc.pgRepo)
	}
	if len(writers) == 0 {
		return 0, errors.New("no sql storage enabled")
	}

	list, err := sc.httpClient.MarketWatch(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch market watch: %w", err)
	}

	written := 0
	assets := sc.engine.Assets()
	for _, m := range list {
		if !m.Valid() {
			continue
		}
		if m.Base == "" || m.Quote == "" {
			base, quote, err := assets.Split(m.Symbol)
			if err != nil {
				continue
			}
			m.Base, m.Quote = base, quote
		}
		for _, w := range writers {
			if err := w.UpsertMarketPrice(ctx, m); err != nil {
				return written, fmt.Errorf("%s upsert %s: %w", w.Name(), m.Symbol, err)
			}
		}
		written++
	}
	log.Info().Int("received", len(list)).Int("written", written).Msg("reference snapshot stored")
	return written, nil
}

type marketPriceWriter interface {
	Name() string
	UpsertMarketPrice(ctx context.Context, m domain.MarketPrice) error
}

// Close 按照相反的顺序关闭所有资源
func (sc *ServiceContext) Close() error {
	var errs []error
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
			errs = append(errs, err)
		}
	}
	sc.closerChain = nil
	return errors.Join(errs...)
}
