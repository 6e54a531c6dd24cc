// Package app assembles the chat server from its configuration: stores,
// services, relay and the HTTP surface. Listeners stay with the caller.
package app

import (
	"charity-chat/auth"
	"charity-chat/domain/event"
	grpcserver "charity-chat/infrastructure/grpc/server"
	"charity-chat/infrastructure/rest"
	"charity-chat/infrastructure/storage"
	"charity-chat/infrastructure/ws"
	"charity-chat/internal"
	"charity-chat/moderation"
	"charity-chat/observability"
	"charity-chat/runtime"
	"charity-chat/runtime/workers"
	"charity-chat/services"
	"charity-chat/sink"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/multierr"
	"google.golang.org/grpc/health"
)

type App struct {
	log          *slog.Logger
	DB           *badger.DB
	index        *bluge.Writer
	Issuer       *auth.TokenIssuer
	Orchestrator *runtime.Orchestrator
	Health       *health.Server
	Handler      http.Handler

	socket  *ws.Handler
	errs    chan error
	done    chan struct{}
	started atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
}

// New opens the stores at the configured paths and wires every component.
// Close must be called once the app is stopped.
func New(ctx context.Context, config internal.Config, log *slog.Logger) (*App, error) {
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}

	db, err := badger.Open(storage.Options(ctx, config.BadgerFilepath, log))
	if err != nil {
		return nil, fmt.Errorf("database opening failed: %w", err)
	}
	index, err := storage.OpenWriter(config.BlugeFilepath)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	moderator, err := newModerator(config, charReplacement, log)
	if err != nil {
		_ = multierr.Combine(index.Close(), db.Close())
		return nil, err
	}

	metrics := observability.NewMetrics()
	accountRepository := storage.NewAccountRepository(db, log)
	chatRepository := storage.NewChatRepository(db, log)
	messageRepository := storage.NewMessageRepository(db, log)
	messageIndex := storage.NewMessageIndex(index, log)

	issuer := auth.NewTokenIssuer(config.AuthSecret, config.AuthTokenDuration)
	authService := services.NewAuthService(accountRepository, issuer, log)
	chatService := services.NewChatService(chatRepository, messageRepository, accountRepository, metrics, log)
	messageService := services.NewMessageService(chatRepository, messageRepository, messageIndex,
		moderator, config.MaxContentLength, metrics, log)

	telemetryChan := make(chan event.Event, config.BufferSize)
	sup := workers.NewSupervisor(log, telemetryChan, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(log, sup, runtime.NewRegistry(), chatService, messageService,
		telemetryChan, metrics, config.BufferSize, config.SinkTimeout, config.MetricInterval)
	orchestrator.Add(sink.NewSearchSink(messageIndex, log))

	healthServer := health.NewServer()
	sup.Add(grpcserver.NewHealthReporter(log, healthServer, orchestrator.Running, time.Second))

	options := ws.DefaultOptions(config.ConnectionBufferSize)
	options.PingInterval = config.PingInterval
	options.PongWait = config.PongWait
	socket := ws.NewHandler(log, orchestrator, metrics, options)
	restHandler := rest.NewHandler(log, authService, chatService, messageService, orchestrator)

	return &App{
		log:          log,
		DB:           db,
		index:        index,
		Issuer:       issuer,
		Orchestrator: orchestrator,
		Health:       healthServer,
		Handler:      rest.NewRouter(log, restHandler, issuer, socket, metrics, orchestrator.Running),
		socket:       socket,
		errs:         make(chan error, 1),
		done:         make(chan struct{}),
	}, nil
}

func newModerator(config internal.Config, replacement rune, log *slog.Logger) (*moderation.Moderator, error) {
	if !config.EnableModeration {
		return nil, nil
	}
	censored, err := moderation.NewEmbeddedLoader().LoadAll("censored")
	if err != nil {
		return nil, fmt.Errorf("censored words loading failed: %w", err)
	}
	m, err := moderation.NewModerator(censored.Words, replacement, log)
	if err != nil {
		return nil, fmt.Errorf("moderator build failed: %w", err)
	}
	log.Info("Moderation enabled", "words", len(censored.Words), "languages", censored.Languages)
	return &m, nil
}

// Start runs the relay until ctx is done or Stop is called.
// A relay failure is reported on Errors.
func (a *App) Start(ctx context.Context) {
	if !a.started.CompareAndSwap(false, true) {
		return
	}
	a.mu.Lock()
	ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()
	go func() {
		defer close(a.done)
		a.log.Info("Starting orchestrator...")
		if err := a.Orchestrator.Start(ctx); err != nil {
			a.errs <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()
}

func (a *App) Errors() <-chan error {
	return a.errs
}

// Stop drops every socket and waits for the relay to drain.
func (a *App) Stop() {
	a.Health.Shutdown()
	a.socket.Close()
	a.Orchestrator.Stop()
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()
	if a.started.Load() {
		<-a.done
	}
}

// CloseSockets drops every live socket, the relay keeps running.
func (a *App) CloseSockets() {
	a.socket.Close()
}

// Close releases the stores.
func (a *App) Close() error {
	a.log.Info("Closing Bluge and BadgerDB...")
	return multierr.Combine(a.index.Close(), a.DB.Close())
}
