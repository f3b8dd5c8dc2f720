package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"

	"sgrchat/backend"
	"sgrchat/parser"
)

const (
	transportStream = "sse"
	transportChain  = "chain"
)

type Server struct {
	client  *backend.Client
	store   *ConversationStore
	turns   *TurnManager
	metrics *Metrics
	config  *Config
	logger  *logrus.Logger
}

// NewServer creates a new server instance with all dependencies initialized
func NewServer(config *Config, logger *logrus.Logger) (*Server, error) {
	logger.Info("Starting server initialization")

	if config.BackendURL == "" {
		return nil, fmt.Errorf("agent backend URL is required. Set AGENT_BACKEND_URL environment variable")
	}

	client := backend.NewClient(backend.Config{
		BaseURL: config.BackendURL,
		APIKey:  config.APIKey,
	})
	logger.WithFields(logrus.Fields{
		"backendURL":   config.BackendURL,
		"defaultModel": config.DefaultModel,
	}).Info("Agent backend client initialized")

	store := NewConversationStore(config.SessionMaxAge, config.CleanupInterval, logger)
	logger.WithField("sessionMaxAge", config.SessionMaxAge).Info("Conversation store initialized with configurable expiry")

	logger.Info("Server initialization completed successfully")
	return &Server{
		client:  client,
		store:   store,
		turns:   NewTurnManager(),
		metrics: NewMetrics(),
		config:  config,
		logger:  logger,
	}, nil
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.store.Close()
}

func (s *Server) requestLogger(c echo.Context, endpoint, prefix string) *logrus.Entry {
	requestID := c.Request().Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}

	return s.logger.WithFields(logrus.Fields{
		"requestId": requestID,
		"endpoint":  endpoint,
		"method":    c.Request().Method,
		"clientIP":  c.RealIP(),
	})
}

// resolveLocale prefers the request's locale field over Accept-Language.
func (s *Server) resolveLocale(c echo.Context, requested string) parser.Locale {
	if requested != "" {
		return parser.MatchLocale(requested, s.config.DefaultLocale)
	}
	return parser.MatchLocale(c.Request().Header.Get("Accept-Language"), s.config.DefaultLocale)
}

func (s *Server) modelFor(conversation *Conversation) string {
	if agentID := conversation.Agent(); agentID != "" {
		return agentID
	}
	return s.config.DefaultModel
}

func (s *Server) handleChat(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/chat", "req")
	requestLogger.Info("Received chat request")

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		requestLogger.WithError(err).Error("Failed to parse request body")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Message is required"})
	}

	locale := s.resolveLocale(c, req.Locale)
	conversation := s.store.GetOrCreate(req.ConversationID)
	history := conversation.GetConversationContext(s.config.ContextLimit)
	conversation.AddUserMessage(req.Message)

	turnID := uuid.NewString()
	requestLogger = requestLogger.WithFields(logrus.Fields{
		"conversationID": conversation.ID,
		"turnID":         turnID,
	})
	requestLogger.WithFields(logrus.Fields{
		"messageLength": len(req.Message),
		"contextLength": len(history),
		"locale":        locale,
	}).Debug("Chat request details with conversation info")

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.RequestTimeout)
	defer cancel()
	if superseded := s.turns.Start(conversation.ID, turnID, cancel); superseded != "" {
		requestLogger.WithField("supersededTurn", superseded).Info("Cancelled previous turn of conversation")
	}
	defer s.turns.Finish(turnID)

	handler := NewCallbackLogger(requestLogger.WithField("component", "chain"), s.config)
	llm := NewAgentLLM(s.client, s.config, requestLogger, locale, parser.WithAgentID(conversation.Agent()))
	llm.CallbacksHandler = handler
	chain := chains.NewLLMChain(llm, CreateConversationPrompt(), chains.WithCallback(handler))

	startTime := time.Now()
	s.metrics.IncActiveStreams(transportChain)
	_, err := chains.Call(ctx, chain, map[string]any{
		"history": history,
		"input":   req.Message,
	},
		chains.WithModel(s.modelFor(conversation)),
		chains.WithMaxTokens(s.config.MaxTokens),
		chains.WithTemperature(s.config.Temperature),
		chains.WithCallback(handler),
	)
	s.metrics.DecActiveStreams(transportChain)
	executionTime := time.Since(startTime)

	turn, ran := llm.LastTurn()
	if ran {
		conversation.PinAgent(turn.AgentID)
		s.metrics.RecordSession(turn.AgentID, turn.Stats)
	}

	response := ChatResponse{
		ConversationID: conversation.ID,
		TurnID:         turnID,
		AgentID:        conversation.Agent(),
		Result:         turn.Result,
		Content:        parser.FormatPersisted(turn.Result, locale),
	}

	if err != nil {
		outcome, status := s.classifyFailure(ctx, err)
		s.metrics.RecordTurn(transportChain, outcome, executionTime)
		requestLogger.WithError(err).WithFields(logrus.Fields{
			"executionTime": executionTime,
			"outcome":       outcome,
		}).Error("Agent turn failed")

		response.Error = s.getErrorMessage(ctx, err)
		if hasContent(turn.Result) && outcome != OutcomeStopped {
			conversation.AddBotMessage(turnID, turn.Result, locale)
			response.Partial = true
		}
		return c.JSON(status, response)
	}

	conversation.AddBotMessage(turnID, turn.Result, locale)
	s.metrics.RecordTurn(transportChain, OutcomeCompleted, executionTime)

	requestLogger.WithFields(logrus.Fields{
		"executionTime":  executionTime,
		"responseLength": len(turn.Result.MainText),
		"response":       truncateForLog(turn.Result.MainText, s.config.LogTruncateLength),
		"agentID":        conversation.Agent(),
	}).Info("Agent turn completed successfully with memory updated")

	return c.JSON(http.StatusOK, response)
}

func (s *Server) handleStreamChat(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/chat/stream", "stream_req")
	requestLogger.Info("Received streaming chat request")

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		requestLogger.WithError(err).Error("Failed to parse streaming request body")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Message is required"})
	}

	locale := s.resolveLocale(c, req.Locale)
	conversation := s.store.GetOrCreate(req.ConversationID)
	history := conversation.History(s.config.ContextLimit)
	conversation.AddUserMessage(req.Message)

	turnID := uuid.NewString()
	requestLogger = requestLogger.WithFields(logrus.Fields{
		"conversationID": conversation.ID,
		"turnID":         turnID,
	})

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	event := func(eventType string) StreamEvent {
		return StreamEvent{
			Type:           eventType,
			ConversationID: conversation.ID,
			TurnID:         turnID,
			Timestamp:      time.Now(),
		}
	}

	s.sendStreamEvent(c, event(EventConversation))

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.RequestTimeout)
	defer cancel()
	if superseded := s.turns.Start(conversation.ID, turnID, cancel); superseded != "" {
		requestLogger.WithField("supersededTurn", superseded).Info("Cancelled previous turn of conversation")
	}
	defer s.turns.Finish(turnID)

	s.sendStreamEvent(c, event(EventTurnStarted))

	agentAnnounced := false
	publisher := func(update parser.Update) {
		if update.AgentID != "" && !agentAnnounced {
			agentAnnounced = true
			if conversation.PinAgent(update.AgentID) {
				requestLogger.WithField("agentID", update.AgentID).Info("Pinned conversation to agent")
			}
			agentEvent := event(EventAgent)
			agentEvent.AgentID = conversation.Agent()
			s.sendStreamEvent(c, agentEvent)
		}
		if update.Final {
			return
		}

		result := update.Result
		msg := event(EventUpdate)
		msg.AgentID = update.AgentID
		msg.Result = &result
		msg.ContentLength = update.ContentLength
		msg.Timestamp = update.Timestamp
		s.sendStreamEvent(c, msg)

		if s.config.DebugMode {
			requestLogger.WithFields(logrus.Fields{
				"contentLength": update.ContentLength,
				"traceLength":   len(result.SpoilerText),
			}).Debug("Published stream update")
		}
	}

	handler := NewCallbackLogger(requestLogger.WithField("component", "agent"), s.config)
	llm := NewAgentLLM(s.client, s.config, requestLogger, locale,
		parser.WithAgentID(conversation.Agent()),
		parser.WithPublisher(publisher),
	)
	llm.CallbacksHandler = handler

	requestLogger.WithFields(logrus.Fields{
		"historyMessages": len(history),
		"locale":          locale,
	}).Info("Starting streaming turn with conversation history")

	startTime := time.Now()
	s.metrics.IncActiveStreams(transportStream)
	response, err := llm.GenerateContent(ctx, historyMessages(history, req.Message),
		llms.WithModel(s.modelFor(conversation)),
	)
	s.metrics.DecActiveStreams(transportStream)
	executionTime := time.Since(startTime)

	turn, _ := llm.LastTurn()
	s.metrics.RecordSession(turn.AgentID, turn.Stats)

	if err != nil {
		outcome, _ := s.classifyFailure(ctx, err)
		s.metrics.RecordTurn(transportStream, outcome, executionTime)
		requestLogger.WithError(err).WithFields(logrus.Fields{
			"executionTime": executionTime,
			"outcome":       outcome,
		}).Error("Streaming agent turn failed")

		if outcome == OutcomeStopped {
			stopped := event(EventStopped)
			stopped.Content = "Turn was stopped"
			s.sendStreamEvent(c, stopped)
			return nil
		}

		if hasContent(turn.Result) {
			conversation.AddBotMessage(turnID, turn.Result, locale)
			done := event(EventDone)
			done.AgentID = conversation.Agent()
			done.Result = &turn.Result
			done.ContentLength = len([]rune(turn.Result.MainText))
			done.Content = parser.FormatPersisted(turn.Result, locale)
			done.Partial = true
			s.sendStreamEvent(c, done)
		}

		failed := event(EventError)
		failed.Content = s.getErrorMessage(ctx, err)
		s.sendStreamEvent(c, failed)
		return nil
	}

	conversation.AddBotMessage(turnID, turn.Result, locale)
	s.metrics.RecordTurn(transportStream, OutcomeCompleted, executionTime)

	done := event(EventDone)
	done.AgentID = conversation.Agent()
	done.Result = &turn.Result
	done.ContentLength = len([]rune(turn.Result.MainText))
	if persisted, ok := response.Choices[0].GenerationInfo[InfoPersisted].(string); ok {
		done.Content = persisted
	}
	s.sendStreamEvent(c, done)

	requestLogger.WithFields(logrus.Fields{
		"executionTime":  executionTime,
		"responseLength": len(turn.Result.MainText),
		"frozen":         turn.Stats.Frozen,
		"frames":         turn.Stats.Frames,
		"agentID":        conversation.Agent(),
	}).Info("Streaming turn completed successfully with memory updated")

	return nil
}

func (s *Server) sendStreamEvent(c echo.Context, msg StreamEvent) {
	data, _ := json.Marshal(msg)
	fmt.Fprintf(c.Response(), "data: %s\n\n", string(data))
	c.Response().Flush()
}

// classifyFailure maps a turn error to its metric outcome and HTTP status.
func (s *Server) classifyFailure(ctx context.Context, err error) (string, int) {
	var statusErr *backend.StatusError
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return OutcomeStopped, http.StatusConflict
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return OutcomeFailed, http.StatusGatewayTimeout
	case IsIncomplete(err):
		return OutcomeIncomplete, http.StatusBadGateway
	case errors.As(err, &statusErr):
		s.metrics.RecordBackendError(fmt.Sprintf("status_%d", statusErr.StatusCode))
		return OutcomeFailed, http.StatusBadGateway
	default:
		s.metrics.RecordBackendError("transport")
		return OutcomeFailed, http.StatusBadGateway
	}
}

func (s *Server) getErrorMessage(ctx context.Context, err error) string {
	var statusErr *backend.StatusError
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return "Turn was stopped"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("The request timed out after %s. Please try a simpler request.", s.config.RequestTimeout)
	case IsIncomplete(err):
		return "The agent stream ended unexpectedly. The answer may be incomplete."
	case errors.As(err, &statusErr):
		return fmt.Sprintf("The agent backend rejected the request (status %d).", statusErr.StatusCode)
	default:
		return "I encountered an error reaching the agent backend. Please try again or contact support if the issue persists."
	}
}

func hasContent(result parser.ParseResult) bool {
	return result.MainText != "" || result.HasTrace()
}

func (s *Server) handleParse(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/parse", "parse_req")

	var req ParseRequest
	if err := c.Bind(&req); err != nil {
		requestLogger.WithError(err).Error("Failed to parse request body")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	classifier := parser.Classifier{Locale: s.resolveLocale(c, req.Locale)}
	result := classifier.Parse(req.Content, req.Questions, req.StreamComplete)

	requestLogger.WithFields(logrus.Fields{
		"contentLength": len(req.Content),
		"hasTrace":      result.HasTrace(),
	}).Debug("Content parsed")

	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleModels(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/models", "models_req")

	models, err := s.client.ListModels(c.Request().Context())
	if err != nil {
		requestLogger.WithError(err).Error("Failed to list agent models")
		s.metrics.RecordBackendError("models")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to list agent models"})
	}

	requestLogger.WithField("modelCount", len(models)).Debug("Agent models listed")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"models":       models,
		"defaultModel": s.config.DefaultModel,
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/status", "status_req")
	requestLogger.Debug("Health check requested")

	memoryStats := s.store.Stats()
	activeTurns := s.turns.Active()

	response := map[string]interface{}{
		"status":       "healthy",
		"backendURL":   s.config.BackendURL,
		"defaultModel": s.config.DefaultModel,
		"memory":       memoryStats,
		"activeTurns":  activeTurns,
		"turnCount":    len(activeTurns),
	}

	requestLogger.WithFields(logrus.Fields{
		"activeTurns":   len(activeTurns),
		"conversations": memoryStats["totalConversations"],
	}).Debug("Status check completed")

	return c.JSON(http.StatusOK, response)
}

func (s *Server) handleGetConversation(c echo.Context) error {
	conversationID := c.Param("conversationId")
	requestLogger := s.requestLogger(c, "/conversations/:conversationId", "conv_req").
		WithField("conversationID", conversationID)

	conversation, exists := s.store.Get(conversationID)
	if !exists {
		requestLogger.Warn("Conversation not found")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Conversation not found"})
	}

	view := conversation.View()
	requestLogger.WithField("messageCount", view.MessageCount).Info("Conversation information retrieved")
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleListConversations(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/conversations", "conv_req")

	conversations := s.store.All()

	requestLogger.WithField("conversationCount", len(conversations)).Info("Conversations listed successfully")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversations": conversations,
	})
}

func (s *Server) handleStopTurn(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/stop", "stop_req")
	requestLogger.Info("Received stop turn request")

	var req StopRequest
	if err := c.Bind(&req); err != nil {
		requestLogger.WithError(err).Error("Failed to parse stop request body")
		return c.JSON(http.StatusBadRequest, StopResponse{
			Success: false,
			Message: "Invalid request format",
			Stopped: false,
		})
	}

	if req.TurnID == "" {
		requestLogger.Error("Empty turn ID in stop request")
		return c.JSON(http.StatusBadRequest, StopResponse{
			Success: false,
			Message: "Turn ID is required",
			Stopped: false,
		})
	}

	if s.turns.Cancel(req.TurnID) {
		requestLogger.WithField("turnID", req.TurnID).Info("Turn stopped successfully")
		return c.JSON(http.StatusOK, StopResponse{
			Success: true,
			Message: "Turn stopped successfully",
			Stopped: true,
		})
	}

	requestLogger.WithField("turnID", req.TurnID).Warn("Turn not found or already completed")
	return c.JSON(http.StatusNotFound, StopResponse{
		Success: false,
		Message: "Turn not found or already completed",
		Stopped: false,
	})
}

func (s *Server) RegisterRoutes(e *echo.Echo) {
	s.logger.Info("Registering routes")

	e.POST("/chat", s.handleChat)
	e.POST("/chat/stream", s.handleStreamChat)
	e.POST("/parse", s.handleParse)
	e.POST("/stop", s.handleStopTurn)

	e.GET("/models", s.handleModels)
	e.GET("/conversations", s.handleListConversations)
	e.GET("/conversations/:conversationId", s.handleGetConversation)
	e.GET("/status", s.handleStatus)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))

	s.logger.Info("Routes registered successfully")
}
