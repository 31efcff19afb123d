package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mobasher/mobasher/internal/config"
)

// ServerOptions configure one stage's worker server.
type ServerOptions struct {
	// Queue this server consumes from (asr, vision, nlp).
	Queue string
	// Concurrency is the number of tasks processed in parallel.
	Concurrency int
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
}

// Server wraps an asynq server consuming one stage queue.
type Server struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewServer builds a stage worker server. Handlers are registered with
// Handle before Run.
func NewServer(cfg config.RedisConfig, opts ServerOptions, logger *slog.Logger) (*Server, error) {
	redisOpts, err := RedisOptions(cfg)
	if err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 10 * time.Second
	}

	log := logger.With(slog.String("component", "queue-server"), slog.String("queue", opts.Queue))

	srv := asynq.NewServer(AsynqOptions(redisOpts), asynq.Config{
		Concurrency: opts.Concurrency,
		Queues:      map[string]int{opts.Queue: 1},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return retryDelay(opts.RetryDelay, n)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("task failed",
				slog.String("task", task.Type()),
				slog.String("error", err.Error()))
		}),
	})

	return &Server{
		srv:    srv,
		mux:    asynq.NewServeMux(),
		logger: log,
	}, nil
}

// retryDelay doubles the base delay per attempt and adds up to 20% jitter
// so a burst of failures does not redeliver in lockstep.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if attempt > 6 {
		attempt = 6
	}
	d := base << attempt
	return d + time.Duration(rand.Int63n(int64(d)/5+1))
}

// Handle registers a handler for one task type.
func (s *Server) Handle(taskType string, handler asynq.HandlerFunc) {
	s.mux.HandleFunc(taskType, handler)
}

// Run starts consuming and blocks until Shutdown.
func (s *Server) Run() error {
	s.logger.Info("worker server starting")
	if err := s.srv.Run(s.mux); err != nil {
		return fmt.Errorf("running worker server: %w", err)
	}
	return nil
}

// Shutdown stops consuming and waits for in-flight tasks.
func (s *Server) Shutdown() {
	s.logger.Info("worker server stopping")
	s.srv.Shutdown()
}
