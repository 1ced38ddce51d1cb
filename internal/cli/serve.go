package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/awaybot/awaybot/internal/api"
	"github.com/awaybot/awaybot/internal/auth"
	"github.com/awaybot/awaybot/internal/chat"
	"github.com/awaybot/awaybot/internal/completion"
	"github.com/awaybot/awaybot/internal/config"
	"github.com/awaybot/awaybot/internal/embedding"
	"github.com/awaybot/awaybot/internal/governance"
	"github.com/awaybot/awaybot/internal/governance/audit"
	"github.com/awaybot/awaybot/internal/governance/quota"
	"github.com/awaybot/awaybot/internal/ingest"
	"github.com/awaybot/awaybot/internal/memory"
	mw "github.com/awaybot/awaybot/internal/middleware"
	inats "github.com/awaybot/awaybot/internal/nats"
	iredis "github.com/awaybot/awaybot/internal/redis"
	"github.com/awaybot/awaybot/internal/server"
	"github.com/awaybot/awaybot/internal/tokens"
	"github.com/awaybot/awaybot/internal/users"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the chat consumer",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	return a.run(ctx)
}

// app is the wired process: an HTTP handler plus background consumers.
type app struct {
	server    config.ServerConfig
	handler   http.Handler
	lanes     *chat.Lanes
	consumers map[string]func(context.Context) error
	closers   []func()
}

func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.New(a.server, a.handler).Run(gctx)
	})
	for name, start := range a.consumers {
		g.Go(func() error {
			if err := start(gctx); err != nil {
				return fmt.Errorf("%s consumer: %w", name, err)
			}
			return nil
		})
	}

	err := g.Wait()
	// In-flight lane jobs finish before the stores close.
	a.lanes.Close()
	return err
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func wire(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{
		server:    cfg.Server,
		consumers: make(map[string]func(context.Context) error),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()
	ready := make(map[string]func(context.Context) error)

	// SQL storage
	st, err := openStorage(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.close)
	ready["database"] = st.ping

	// Redis
	rdb, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { rdb.Close() })
	ready["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	// Memory
	embedder, err := embedding.New(cfg.Embed)
	if err != nil {
		return nil, fmt.Errorf("building embedder: %w", err)
	}
	if c, ok := embedder.(interface{ Close() }); ok {
		a.closers = append(a.closers, c.Close)
	}
	index, err := openIndex(cfg.Vector, st, embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	counter := tokens.New(tokens.DefaultEncoding)
	memCfg := memory.ConfigFrom(cfg.Memory)

	shortTerm, err := newShortTermStore(rdb, counter, memCfg, cfg.Encryption)
	if err != nil {
		return nil, err
	}
	longTerm := memory.NewLongTermStore(embedder, index, memCfg)
	userSvc := users.NewService(st.users)
	memSvc := memory.NewService(shortTerm, longTerm, st.facts, st.files, userSvc, memCfg)
	assembler := memory.NewContextAssembler(st.facts, shortTerm, longTerm, memory.PromptsFrom(cfg.Prompts), memCfg)

	// Completion
	llm, err := completion.New(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("building completion client: %w", err)
	}

	// Events: NATS when available, direct audit writes otherwise
	var (
		auditPub    audit.Publisher = audit.NewRecorder(st.audit)
		publisher   *inats.Publisher
		consumerMgr *inats.ConsumerManager
	)
	if !cfg.NATS.Disabled {
		natsClient, err := inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, natsClient.Close)
		ready["nats"] = func(context.Context) error {
			if !natsClient.Healthy() {
				return errors.New("nats disconnected")
			}
			return nil
		}
		publisher = inats.NewPublisher(natsClient.JetStream())
		consumerMgr = inats.NewConsumerManager(natsClient.JetStream())
		auditPub = publisher
		a.consumers["audit"] = audit.NewConsumer(st.audit, consumerMgr).Start
	} else {
		slog.Warn("NATS disabled, chat is served over HTTP only")
	}

	// Chat
	quotaSvc := quota.NewService(quota.NewRateLimiter(rdb), cfg.Chat.RateLimitPerMinute)
	autoReply := chat.NewAutoReply(rdb)
	chatSvc := chat.NewService(chat.Deps{
		Users:     userSvc,
		History:   shortTerm,
		Facts:     memory.NewFactExtractor(st.facts),
		Assembler: assembler,
		LLM:       llm,
		LongTerm:  longTerm,
		Quota:     quotaSvc,
		Audit:     auditPub,
		AutoReply: autoReply,
	}, cfg.Chat, cfg.LLM.MaxTokens)
	a.lanes = chat.NewLanes(cfg.Chat.MaxConcurrency)
	if consumerMgr != nil {
		a.consumers["chat"] = chat.NewConsumer(chatSvc, publisher, consumerMgr, a.lanes).Start
	}

	// HTTP
	memHandler := memory.NewHandler(memSvc)
	chunker := ingest.NewChunker(counter, cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	ingestHandler := ingest.NewHandler(ingest.NewIngestor(chunker, longTerm, st.files))
	chatHandler := chat.NewHTTPHandler(chatSvc, a.lanes)
	autoReplyHandler := chat.NewAutoReplyHandler(autoReply)
	govHandler := governance.NewHandler(quotaSvc, st.audit)
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)
	httpLimiter := mw.NewRateLimiter(rdb, cfg.RateLimit.HTTPRequests, cfg.RateLimit.HTTPWindowSeconds)

	a.handler = api.NewRouter(api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		RateLimiter:        httpLimiter.Middleware,
	}, api.HandlerSet{
		MemoryDashboard: memHandler.Dashboard,
		MemorySearch:    memHandler.Search,
		History:         memHandler.History,
		Forget:          audit.Trail(auditPub, audit.EventHistoryCleared, memHandler.Forget),
		ForgetAll:       audit.Trail(auditPub, audit.EventHistoryCleared, memHandler.ForgetAll),
		Wipe:            audit.Trail(auditPub, audit.EventMemoryWiped, memHandler.Wipe),
		Export:          memHandler.Export,
		GetMode:         memHandler.GetMode,
		SetMode:         memHandler.SetMode,
		Privacy:         memHandler.Privacy,

		UploadFile:   audit.Trail(auditPub, audit.EventFileIngested, ingestHandler.Upload),
		SendMessage:  chatHandler.Send,
		GetAutoReply: autoReplyHandler.Get,
		SetAutoReply: autoReplyHandler.Set,

		GetQuota:      govHandler.GetQuota,
		ListAuditLogs: govHandler.ListAuditLogs,

		AuthMiddleware: auth.Middleware(jwtManager),
		ReadyChecks:    ready,
	})

	return a, nil
}

func newShortTermStore(rdb goredis.Cmdable, counter tokens.Counter, memCfg memory.Config, enc config.EncryptionConfig) (*memory.ShortTermStore, error) {
	var opts []memory.ShortTermOption
	if enc.Key != "" {
		sealer, err := auth.NewEncryptor(enc.Key)
		if err != nil {
			return nil, err
		}
		opts = append(opts, memory.WithSealer(sealer))
	}
	return memory.NewShortTermStore(rdb, counter, memCfg, opts...), nil
}
