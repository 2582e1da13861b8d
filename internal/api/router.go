package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/studywise/backend/internal/api/handlers"
	"github.com/studywise/backend/internal/api/middleware"
	"github.com/studywise/backend/internal/auth"
	"github.com/studywise/backend/internal/cache"
	"github.com/studywise/backend/internal/chat"
	"github.com/studywise/backend/internal/config"
	"github.com/studywise/backend/internal/enrich"
	"github.com/studywise/backend/internal/ingest"
	"github.com/studywise/backend/internal/llm"
	"github.com/studywise/backend/internal/notify"
	"github.com/studywise/backend/internal/queue"
	"github.com/studywise/backend/internal/quota"
	"github.com/studywise/backend/internal/storage"
	"github.com/studywise/backend/internal/store"
	"github.com/studywise/backend/internal/usage"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
	store store.Store
	jwt   *auth.JWTMiddleware
	llmGW llm.Gateway
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	st := store.NewPostgresStore(db)
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
		store: st,
		jwt:   auth.NewJWTMiddleware(cfg.Auth.JWTSecret, st),
		llmGW: llm.NewGateway(cfg.LLM),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Services
	objects := storage.NewSupabaseStorage(rt.cfg.Storage.SupabaseURL, rt.cfg.Storage.SupabaseKey)
	enricher := enrich.NewGateway(rt.llmGW, rt.cfg.LLM, rt.cfg.Enrich)
	policy := quota.NewPolicy(rt.cfg.Quota)
	ledger := usage.NewLedger(rt.store)
	docCache := cache.NewCache(rt.redis)
	queueClient := queue.NewClient(rt.cfg.Redis)
	dispatcher := notify.NewDispatcher(rt.cfg.Notify)

	ingestPipe := ingest.NewPipeline(rt.store, objects, rt.cfg.Storage.Bucket, enricher,
		policy, ledger, dispatcher, rt.cfg.Quota.MaxUploadSizeBytes)
	chatPipe := chat.NewPipeline(rt.store, enricher, policy, ledger, docCache,
		rt.cfg.Enrich.DocCacheTTL, rt.cfg.Enrich.HistoryWindow)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Billing webhook authenticates by HMAC signature, not JWT.
		billingH := handlers.NewBillingHandler(rt.cfg.Billing.WebhookSecret, queueClient)
		r.Post("/billing/webhook", billingH.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(rt.jwt.Authenticate)

			docH := handlers.NewDocumentHandler(ingestPipe, rt.cfg.Quota.MaxUploadSizeBytes)
			r.Post("/upload", docH.Upload)
			collH := handlers.NewCollectionHandler(rt.store)
			r.Route("/documents", func(r chi.Router) {
				r.Get("/", docH.List)
				r.Get("/by-collection/{id}", collH.Documents)
				r.Get("/{id}", docH.Get)
				r.Post("/{id}/refine", docH.Refine)
			})

			msgH := handlers.NewMessageHandler(chatPipe)
			r.Route("/messages", func(r chi.Router) {
				r.Get("/", msgH.List)
				r.Post("/", msgH.Send)
			})

			r.Route("/collections", func(r chi.Router) {
				r.Post("/", collH.Create)
				r.Get("/", collH.List)
				r.Get("/{id}", collH.Get)
				r.Put("/{id}", collH.Update)
				r.Delete("/{id}", collH.Delete)
			})

			usageH := handlers.NewUsageHandler(policy)
			r.Get("/usage", usageH.Get)
		})
	})

	return r
}
