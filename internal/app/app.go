// Package app собирает процесс сервиса обменов: хранилище, каналы уведомлений,
// движок обмена, HTTP и WebSocket серверы.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rajivgeraev/flippy-swap/internal/config"
	"github.com/rajivgeraev/flippy-swap/internal/identity"
	"github.com/rajivgeraev/flippy-swap/internal/middleware"
	"github.com/rajivgeraev/flippy-swap/internal/notify"
	"github.com/rajivgeraev/flippy-swap/internal/services/items"
	"github.com/rajivgeraev/flippy-swap/internal/services/swap"
	"github.com/rajivgeraev/flippy-swap/internal/websocket"
)

const redisPingTimeout = 3 * time.Second

// App представляет собранный процесс сервиса
type App struct {
	cfg        config.Config
	log        *zap.Logger
	stores     *stores
	redis      *goredis.Client
	dispatcher *notify.Dispatcher
	sockets    *websocket.Manager
	engine     *swap.Service
	http       *fiber.App
	ws         *http.Server

	shutdownOnce sync.Once
	shutdownErr  error
}

// New собирает зависимости по конфигурации. Ошибка хранилища фатальна,
// недоступный Redis только отключает inbox.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, errors.New("logger is nil")
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		log:     log,
		stores:  st,
		sockets: websocket.NewManager(log.Named("websocket")),
	}

	sinks := []notify.NamedSink{{Name: "websocket", Sink: a.sockets}}

	var inbox *notify.RedisInbox
	if cfg.Redis.Addr != "" {
		a.redis = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err := a.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("redis недоступен, входящие уведомления отключены", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = a.redis.Close()
			a.redis = nil
		} else {
			inbox = notify.NewRedisInbox(a.redis, cfg.Redis.InboxSize, cfg.Redis.InboxTTL)
			sinks = append(sinks, notify.NamedSink{Name: "redis", Sink: inbox})
		}
	}

	if cfg.SMTP.Host != "" {
		mailer := notify.NewSMTPMailer(cfg.SMTP)
		sinks = append(sinks, notify.NamedSink{Name: "email", Sink: notify.NewEmailSink(st.users, mailer, log.Named("email"))})
	}

	if len(sinks) == 1 {
		sinks = append(sinks, notify.NamedSink{Name: "log", Sink: notify.NewLogSink(log.Named("notifications"))})
	}

	a.dispatcher = notify.NewDispatcher(notify.DispatcherConfig{
		MaxInFlight: cfg.Notify.MaxInFlight,
		Timeout:     cfg.Notify.Timeout,
	}, log.Named("notify"), sinks...)

	a.engine = swap.NewService(swap.Dependencies{
		Store:    st.swaps,
		Notifier: a.dispatcher,
		Logger:   log.Named("swap"),
		Config: swap.Config{
			TxTimeout:        cfg.Swap.TxTimeout,
			MaxMessageLength: cfg.Swap.MessageMaxLength,
		},
	})

	tokens := identity.NewJWTService(cfg.JWTSecret, cfg.JWTTTL)
	authMiddleware := middleware.AuthMiddleware(tokens)

	a.http = fiber.New(fiber.Config{
		AppName:      "Flippy Swap",
		ErrorHandler: errorHandler,
	})
	a.http.Use(recover.New())
	a.http.Use(fiberlogger.New())
	a.http.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowCredentials: false,
	}))

	a.http.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	items.NewService(st.items, log.Named("items")).SetupRoutes(a.http, authMiddleware)
	swap.NewHandler(a.engine, log.Named("http")).SetupRoutes(a.http, authMiddleware, cfg.Swap.RequireVerified)

	if cfg.TelegramBotToken != "" {
		identity.NewTelegramExchanger(cfg.TelegramBotToken, st.users, tokens).SetupRoutes(a.http, log.Named("auth"))
	} else {
		log.Info("TELEGRAM_BOT_TOKEN не задан, вход через Telegram отключён")
	}

	if inbox != nil {
		inbox.SetupRoutes(a.http, authMiddleware, log.Named("inbox"))
	}

	a.ws = &http.Server{
		Addr:              cfg.WSAddr,
		Handler:           websocket.NewHandler(a.sockets, tokens, log.Named("websocket")).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// HTTP возвращает fiber приложение с зарегистрированными маршрутами
func (a *App) HTTP() *fiber.App {
	return a.http
}

// Run запускает HTTP и WebSocket серверы и возвращается, когда любой из них остановился
func (a *App) Run() error {
	var g errgroup.Group

	g.Go(func() error {
		a.log.Info("HTTP сервер запущен", zap.String("addr", a.cfg.HTTPAddr))
		return a.http.Listen(a.cfg.HTTPAddr, fiber.ListenConfig{DisableStartupMessage: true})
	})

	g.Go(func() error {
		a.log.Info("WebSocket сервер запущен", zap.String("addr", a.cfg.WSAddr))
		err := a.ws.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	return g.Wait()
}

// Shutdown останавливает серверы, дожидается доставки уведомлений и закрывает соединения.
// Повторный вызов возвращает результат первого.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.shutdown(ctx)
	})
	return a.shutdownErr
}

func (a *App) shutdown(ctx context.Context) error {
	var errs []error

	if err := a.http.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("остановка HTTP сервера: %w", err))
	}
	if err := a.ws.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("остановка WebSocket сервера: %w", err))
	}

	// после остановки серверов новых уведомлений не появится
	if err := a.dispatcher.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("ожидание доставки уведомлений: %w", err))
	}
	a.sockets.Shutdown()

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("закрытие redis: %w", err))
		}
	}
	if err := a.stores.close(); err != nil {
		errs = append(errs, fmt.Errorf("закрытие хранилища: %w", err))
	}

	return errors.Join(errs...)
}

// errorHandler обрабатывает ошибки Fiber
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
