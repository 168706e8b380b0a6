package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"github.com/danghamo/isoboard/internal/api/handlers"
	"github.com/danghamo/isoboard/internal/api/jsonrpcx"
	"github.com/danghamo/isoboard/internal/api/middleware"
	"github.com/danghamo/isoboard/internal/app/service"
	cqrsevents "github.com/danghamo/isoboard/internal/cqrs"
	cqrshandlers "github.com/danghamo/isoboard/internal/cqrs/handlers"
	"github.com/danghamo/isoboard/pkg/autorouter"
	"github.com/danghamo/isoboard/pkg/config"
	"github.com/danghamo/isoboard/pkg/logger"
	"github.com/danghamo/isoboard/pkg/sse"
)

const (
	eventTopicFormat = "board-events.%s"
	apiPrefix        = "/api/v1/"
)

// Server represents the HTTP server
type Server struct {
	cfg            *config.Config
	httpServer     *http.Server
	logger         *logger.Logger
	mux            *http.ServeMux
	boardService   *service.BoardService
	boardFlusher   *service.BoardFlusher
	boardHandler   *handlers.BoardHandler
	serverHandler  *handlers.ServerHandler
	dragHandler    *handlers.DragHandler
	sseBroadcaster *sse.SSEBroadcaster
	boardRouter    *autorouter.AutoRouter
	serverRouter   *autorouter.AutoRouter
	// Watermill CQRS components
	pubSub          *gochannel.GoChannel
	eventBus        *cqrs.EventBus
	eventProcessor  *cqrs.EventProcessor
	router          *message.Router
	sseEventHandler *cqrshandlers.SSEEventHandler
}

// NewServer wires the board service, the in-process event bus and the HTTP routes.
// ctx bounds background helpers such as the rate limiter cleanup.
func NewServer(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Server, error) {
	mux := http.NewServeMux()
	apiLogger := log.WithComponent("api")

	watermillLogger := logger.NewWatermillAdapter(log.WithComponent("watermill"))

	// In-process pub/sub; one board per process needs no external broker
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 1024,
	}, watermillLogger)

	// Create message router with short close timeout
	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 5 * time.Second,
	}, watermillLogger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	eventBus, err := cqrs.NewEventBusWithConfig(
		pubSub,
		cqrs.EventBusConfig{
			GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
				return fmt.Sprintf(eventTopicFormat, params.EventName), nil
			},
			Marshaler: cqrs.JSONMarshaler{},
			Logger:    watermillLogger,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create event bus: %w", err)
	}

	eventProcessor, err := cqrs.NewEventProcessorWithConfig(
		router,
		cqrs.EventProcessorConfig{
			GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
				return fmt.Sprintf(eventTopicFormat, params.EventName), nil
			},
			SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
				return pubSub, nil
			},
			Marshaler: cqrs.JSONMarshaler{},
			Logger:    watermillLogger,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create event processor: %w", err)
	}

	boardService, err := service.NewBoardService(cfg, eventBus, log)
	if err != nil {
		return nil, fmt.Errorf("create board service: %w", err)
	}

	sseBroadcaster := sse.NewSSEBroadcaster(apiLogger)
	sseBroadcaster.SetInitialSync(func() (jsonrpcx.JsonRpcNotification, bool) {
		snap := boardService.Snapshot()
		doc := cqrshandlers.NewBoardDocument(snap.Version, snap.Tiles)
		return jsonrpcx.NewNotification(cqrshandlers.MethodBoardSnapshot, doc), true
	})

	sseEventHandler := cqrshandlers.NewSSEEventHandler(sseBroadcaster, apiLogger)

	err = eventProcessor.AddHandlers(
		cqrs.NewEventHandler("BoardChangedEvent", sseEventHandler.HandleBoardChangedEvent),
		cqrs.NewEventHandler("TileDroppedEvent", sseEventHandler.HandleTileDroppedEvent),
		cqrs.NewEventHandler("BoardStatsEvent", sseEventHandler.HandleBoardStatsEvent),
		cqrs.NewEventHandler("SSENotificationEvent", sseEventHandler.HandleSSENotificationEvent),
	)
	if err != nil {
		boardService.Close()
		return nil, fmt.Errorf("register event handlers: %w", err)
	}

	width, height := boardService.Size()

	server := &Server{
		httpServer: &http.Server{
			Addr:         cfg.Server.GetServerAddr(),
			Handler:      mux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		cfg:             cfg,
		logger:          apiLogger,
		mux:             mux,
		boardService:    boardService,
		boardFlusher:    service.NewBoardFlusher(log, boardService, eventBus, service.DefaultFlushInterval),
		boardHandler:    handlers.NewBoardHandler(apiLogger, boardService),
		dragHandler:     handlers.NewDragHandler(apiLogger, boardService, cqrsevents.NewSSEBroadcastHelper(eventBus)),
		sseBroadcaster:  sseBroadcaster,
		pubSub:          pubSub,
		eventBus:        eventBus,
		eventProcessor:  eventProcessor,
		router:          router,
		sseEventHandler: sseEventHandler,
	}

	server.boardRouter = autorouter.NewAutoRouter(mux, autorouter.RegistrationOptions{
		Prefix:       apiPrefix,
		MethodPrefix: "board.",
		Logger:       apiLogger,
	})
	server.serverRouter = autorouter.NewAutoRouter(mux, autorouter.RegistrationOptions{
		Prefix:       apiPrefix,
		MethodPrefix: "server.",
		Logger:       apiLogger,
	})
	server.serverHandler = handlers.NewServerHandler(cfg.Server, width, height, server.methodNames)

	if err := server.setupRoutes(); err != nil {
		boardService.Close()
		return nil, err
	}
	server.setupMiddleware(ctx)

	return server, nil
}

// setupRoutes configures the server routes
func (s *Server) setupRoutes() error {
	healthPath := s.cfg.Server.HealthCheckPath
	if healthPath == "" {
		healthPath = "/health"
	}
	s.mux.HandleFunc(healthPath, s.healthCheckHandler)

	// JSON-RPC methods: /api/v1/board.Place, /api/v1/server.Info, ...
	if err := s.boardRouter.RegisterHandlers(s.boardHandler); err != nil {
		return fmt.Errorf("register board handler: %w", err)
	}
	if err := s.serverRouter.RegisterHandlers(s.serverHandler); err != nil {
		return fmt.Errorf("register server handler: %w", err)
	}

	// Streams
	s.mux.HandleFunc(apiPrefix+"stream/board", s.sseBroadcaster.HandleSSE)
	s.mux.HandleFunc(apiPrefix+"stream/drag", s.dragHandler.HandleDrag)

	return nil
}

// methodNames lists every registered JSON-RPC method
func (s *Server) methodNames() []string {
	return append(s.boardRouter.MethodNames(), s.serverRouter.MethodNames()...)
}

// setupMiddleware applies middleware to all routes
func (s *Server) setupMiddleware(ctx context.Context) {
	middlewareChain := middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.ErrorAdapter(s.logger),
		middleware.CORS(s.cfg.CORS),
		middleware.Logging(s.logger),
		middleware.RateLimit(ctx, s.logger, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst),
	)

	s.httpServer.Handler = middlewareChain(s.mux)
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// BoardService returns the board owned by this server
func (s *Server) BoardService() *service.BoardService {
	return s.boardService
}

// Start runs the event router, the board flusher and the HTTP server until ctx ends
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("address", s.httpServer.Addr))

	// Start Watermill router first
	go func() {
		if err := s.router.Run(ctx); err != nil {
			s.logger.Error("Watermill router error", zap.Error(err))
		}
	}()

	s.boardFlusher.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = s.Shutdown()
		return err
	}

	return s.Shutdown()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down HTTP server")

	// Shutdown SSE broadcaster first to close client connections
	if s.sseBroadcaster != nil {
		s.logger.Debug("Closing SSE broadcaster")
		s.sseBroadcaster.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown error", zap.Error(err))
		return err
	}

	s.boardFlusher.Stop()
	s.boardService.Close()

	// Shutdown Watermill router (with CloseTimeout already configured)
	if s.router != nil {
		s.logger.Info("Closing Watermill router")
		if err := s.router.Close(); err != nil {
			s.logger.Error("Router shutdown error", zap.Error(err))
			return err
		}
	}
	if err := s.pubSub.Close(); err != nil {
		s.logger.Error("Pub/sub shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// GetAddr returns the server address
func (s *Server) GetAddr() string {
	return s.httpServer.Addr
}

// healthCheckHandler reports liveness plus a few board figures
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.boardService.Stats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"board": map[string]any{
				"status":  "up",
				"version": s.boardService.Version(),
				"tiles":   stats.TileCount,
			},
			"sse": map[string]any{
				"status":  "up",
				"clients": s.sseBroadcaster.GetClientCount(),
			},
		},
	})
}
