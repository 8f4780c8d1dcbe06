package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Novip1906/tasks-live/internal/auth"
	"github.com/Novip1906/tasks-live/internal/bridge"
	"github.com/Novip1906/tasks-live/internal/config"
	"github.com/Novip1906/tasks-live/internal/elasticsearch"
	"github.com/Novip1906/tasks-live/internal/handlers"
	"github.com/Novip1906/tasks-live/internal/kafka"
	"github.com/Novip1906/tasks-live/internal/middleware"
	"github.com/Novip1906/tasks-live/internal/notify"
	"github.com/Novip1906/tasks-live/internal/repository"
	"github.com/Novip1906/tasks-live/internal/service"
	"github.com/Novip1906/tasks-live/internal/storage"
	"github.com/Novip1906/tasks-live/pkg/logging"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg      *config.Config
	log      *slog.Logger
	hs       *http.Server
	db       *storage.RedisStorage
	live     *bridge.Handler
	producer *kafka.EventsProducer
	cancel   context.CancelFunc
}

func NewServer(ctx context.Context, cfg *config.Config, log *slog.Logger) *Server {
	db, err := storage.NewRedisStorage(ctx, &cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", logging.Err(err))
		panic(err)
	}

	var (
		sinks    []repository.EventSink
		searcher service.TaskSearcher
		producer *kafka.EventsProducer
	)

	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewEventsProducer(&cfg.Kafka)
		sinks = append(sinks, producer)
		log.Info("kafka mirror enabled", slog.String("topic", cfg.Kafka.EventsTopic))
	}

	if len(cfg.Elasticsearch.Addresses) > 0 {
		es, err := elasticsearch.NewClient(ctx, &cfg.Elasticsearch, log)
		if err != nil {
			log.Error("failed to set up elasticsearch", logging.Err(err))
			panic(err)
		}
		sinks = append(sinks, es)
		searcher = es
	}

	bus := notify.NewBus(db, log)
	tokens := auth.NewTokenAuthority(cfg.JWTSecret, cfg.Auth.TokenTTL, nil)
	authService := service.NewAuthService(
		cfg.Params,
		log,
		repository.NewUserRepository(db, bcrypt.DefaultCost),
		tokens,
		auth.NewRevocationLedger(db, nil),
	)
	tasksService := service.NewTasksService(
		cfg.Params,
		log,
		repository.NewTaskRepository(db, bus, log, sinks...),
		searcher,
	)

	liveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	live := bridge.NewHandler(liveCtx, authService, bus, log)

	mws := []mux.MiddlewareFunc{middleware.LoggingMiddleware(log)}
	if cfg.RateLimiter.Enabled {
		rl := middleware.NewRateLimiter(db.Client(), &cfg.RateLimiter, log)
		mws = append(mws, rl.Middleware)
	}

	router := handlers.NewRouter(
		handlers.NewAuthHandler(authService),
		handlers.NewTasksHandler(tasksService),
		live,
		mws...,
	)

	return &Server{
		cfg:      cfg,
		log:      log,
		hs:       &http.Server{Addr: cfg.Address, Handler: router, ReadHeaderTimeout: 10 * time.Second},
		db:       db,
		live:     live,
		producer: producer,
		cancel:   cancel,
	}
}

// Run serves until ctx is cancelled, then drains requests and live
// connections before releasing the store and the producer.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", slog.String("address", s.cfg.Address))
		if err := s.hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.log.Info("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.hs.Shutdown(shutdownCtx); err != nil {
		s.log.Error("http shutdown failed", logging.Err(err))
	}

	s.cancel()
	s.live.Wait()
	s.Close()

	return runErr
}

func (s *Server) Close() {
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			s.log.Error("kafka producer close failed", logging.Err(err))
		}
	}
	if err := s.db.Close(); err != nil {
		s.log.Error("redis close failed", logging.Err(err))
	}
}
