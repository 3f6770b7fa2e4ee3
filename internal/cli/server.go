package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	infrapg "live-quiz-service/internal/infra/postgres"
	infraredis "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz sync server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		// No config file means in-memory stores only; fine for local runs.
		log.Printf("config %s not found, using defaults", configPath)
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = infrapg.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var sessionStore app.SessionStore
	switch {
	case pool != nil:
		sessionStore = infrapg.NewSessionStore(pool)
	case redisClient != nil:
		sessionStore = infraredis.NewSessionStore(redisClient, redisTTL)
	default:
		sessionStore = memory.NewSessionStore()
	}

	var submissionStore app.SubmissionStore
	if pool != nil {
		submissionStore = infrapg.NewSubmissionStore(pool)
	} else {
		submissionStore = memory.NewSubmissionStore()
	}

	cursorTTL := config.TTLDuration(cfg.Sync.CursorTTL, 2*time.Hour)
	var cursorStore app.CursorStore
	if redisClient != nil {
		cursorStore = infraredis.NewCursorStore(redisClient, cursorTTL)
	} else {
		cursorStore = memory.NewCursorStore()
	}

	hub := app.NewHub()
	var events app.EventPublisher = hub
	if redisClient != nil {
		instanceID := randomInstanceID()
		events = infraredis.NewPublisher(redisClient, hub, instanceID)
		go func() {
			if err := infraredis.RunEventBridge(ctx, redisClient, hub, instanceID); err != nil && ctx.Err() == nil {
				log.Printf("event bridge stopped: %v", err)
			}
		}()
	}

	sessions := app.NewSessionService(sessionStore, quizRepo, events)
	answers := app.NewAnswerService(sessionStore, quizRepo, submissionStore, cursorStore, events)
	boards := app.NewLeaderboardService(sessionStore, quizRepo, submissionStore)

	hostPoll := config.TTLDuration(cfg.Sync.HostPollInterval, time.Second)
	playerPoll := config.TTLDuration(cfg.Sync.PlayerPollInterval, 1500*time.Millisecond)

	wsHandler := transport.NewWSHandler(sessions, answers, boards, hub)
	apiHandler := transport.NewAPIHandler(sessions, answers, boards, hostPoll, playerPoll)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	apiHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz sync service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func randomInstanceID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// sampleQuizzes provides a minimal demo quiz; production deployments load
// quizzes from Postgres instead.
func sampleQuizzes() map[string]domain.Quiz {
	questions := []domain.Question{
		{
			ID:         "q1",
			QuizID:     "quiz-1",
			OrderIndex: 0,
			Text:       "What is 2 + 2?",
			Options: []domain.Option{
				{ID: "o1", Text: "3"},
				{ID: "o2", Text: "4"},
				{ID: "o3", Text: "5"},
			},
			CorrectOption:    "o2",
			TimeLimitSeconds: 20,
		},
		{
			ID:         "q2",
			QuizID:     "quiz-1",
			OrderIndex: 1,
			Text:       "Which planet is closest to the sun?",
			Options: []domain.Option{
				{ID: "o1", Text: "Venus"},
				{ID: "o2", Text: "Mercury"},
			},
			CorrectOption:    "o2",
			TimeLimitSeconds: 20,
		},
		{
			ID:         "q3",
			QuizID:     "quiz-1",
			OrderIndex: 2,
			Text:       "How many continents are there?",
			Options: []domain.Option{
				{ID: "o1", Text: "5"},
				{ID: "o2", Text: "6"},
				{ID: "o3", Text: "7"},
			},
			CorrectOption:    "o3",
			TimeLimitSeconds: 20,
		},
	}
	return map[string]domain.Quiz{"quiz-1": {ID: "quiz-1", EventID: "event-1", Questions: questions}}
}
