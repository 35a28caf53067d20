package server

import (
	"github.com/RyuseiKamei/MeowChain/internal/auth"
	"github.com/RyuseiKamei/MeowChain/internal/chain"
	"github.com/RyuseiKamei/MeowChain/internal/config"
	"github.com/RyuseiKamei/MeowChain/internal/relay"
	"github.com/RyuseiKamei/MeowChain/internal/settlement"
	"github.com/RyuseiKamei/MeowChain/internal/shop"
	"github.com/RyuseiKamei/MeowChain/internal/store"
	"github.com/RyuseiKamei/MeowChain/internal/stream"
	"github.com/RyuseiKamei/MeowChain/internal/walk"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Chain  *chain.Client
	Stream *stream.Hub
}

// NewServer assembles the app. chainClient may be nil when no signer is
// configured; settlement quotes still record, execution fails preflight.
func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, chainClient *chain.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Chain:  chainClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	var chainIface settlement.ChainClient
	var balancer store.TokenBalancer
	if s.Chain != nil {
		chainIface = s.Chain
		balancer = s.Chain
	}

	balances := store.NewBalances(s.Redis, s.Cfg.TokenDecimals)
	notifier := relay.New(s.Cfg.RelayURL, s.Cfg.RelayInsecure)
	engine := settlement.NewEngine(s.DB, chainIface, balances, s.Cfg.TokenDecimals)

	walkSvc := walk.NewService(s.DB, s.Stream, engine)
	shopSvc := shop.NewService(s.DB, engine, balancer, s.Cfg.ShopRecipient, s.Cfg.TokenDecimals, notifier.DispenseHook())

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB), jwtMiddleware)
	walk.RegisterRoutes(s.App.Group("/walks"), walkSvc, jwtMiddleware)
	settlement.RegisterRoutes(s.App.Group("/settlements"), engine, notifier.DispenseHook(), jwtMiddleware)
	shop.RegisterRoutes(s.App.Group("/shop"), shopSvc, jwtMiddleware)
	store.RegisterRoutes(s.App.Group("/profile"), balances, balancer, s.Cfg.TokenDecimals, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
