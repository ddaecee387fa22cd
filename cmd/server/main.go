package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/buzzylabs/buzzy/adapters/llm"
	buzzymongo "github.com/buzzylabs/buzzy/adapters/mongo"
	buzzyredis "github.com/buzzylabs/buzzy/adapters/redis"
	"github.com/buzzylabs/buzzy/adapters/stt"
	"github.com/buzzylabs/buzzy/adapters/tts"
	"github.com/buzzylabs/buzzy/domain/repositories"
	"github.com/buzzylabs/buzzy/internal/api"
	"github.com/buzzylabs/buzzy/internal/protocol"
	"github.com/buzzylabs/buzzy/internal/websocket"
	"github.com/buzzylabs/buzzy/usecase"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize adapters, falling back to mocks where no credentials
	// are configured so the server always comes up for development.
	var languageModel repositories.LargeLanguageModel
	var completer repositories.ChatCompleter
	if os.Getenv("GEMINI_API_KEY") != "" {
		gemini, err := llm.NewGeminiLLM(llm.NewGeminiConfigFromEnv(), logger)
		if err != nil {
			logger.Fatal("Failed to initialize Gemini", zap.Error(err))
		}
		languageModel, completer = gemini, gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, using mock language model")
		mock := llm.NewMockLLM()
		languageModel, completer = mock, mock
	}

	var speechToText repositories.SpeechToText
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
		google, err := stt.NewGoogleSpeechToText(context.Background(), logger)
		if err != nil {
			logger.Fatal("Failed to initialize Google Speech-to-Text", zap.Error(err))
		}
		defer google.Close()
		speechToText = google
	} else {
		logger.Warn("GOOGLE_APPLICATION_CREDENTIALS not set, using mock recognizer")
		speechToText = stt.NewMockSpeechToText(logger)
	}

	var textToSpeech repositories.TextToSpeech
	if os.Getenv("ELEVEN_LABS_API_KEY") != "" {
		eleven, err := tts.NewElevenLabsTTS(tts.NewElevenLabsConfigFromEnv(), logger)
		if err != nil {
			logger.Fatal("Failed to initialize Eleven Labs", zap.Error(err))
		}
		textToSpeech = eleven
	} else {
		logger.Warn("ELEVEN_LABS_API_KEY not set, using mock synthesizer")
		textToSpeech = tts.NewMockTextToSpeech(logger)
	}

	var chats repositories.ChatRepository
	if os.Getenv("MONGODB_URI") != "" {
		mongoClient, err := buzzymongo.NewClient(context.Background(), buzzymongo.NewConfigFromEnv(), logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer mongoClient.Close(context.Background())
		chats = buzzymongo.NewChatRepository(mongoClient.Database)

		if os.Getenv("REDIS_ADDR") != "" {
			redisClient, err := buzzyredis.NewClient()
			if err != nil {
				logger.Fatal("Failed to connect to Redis", zap.Error(err))
			}
			defer redisClient.Close()
			chats = buzzyredis.NewCachedChatRepository(chats, redisClient, logger)
			logger.Info("Context window caching enabled")
		}
	} else {
		logger.Warn("MONGODB_URI not set, chat history will not be persisted")
	}

	// Initialize the turn orchestrator and WebSocket hub
	turns := usecase.NewTurnService(languageModel, speechToText, textToSpeech, chats, logger)
	hub := websocket.NewHub(turns, protocol.NewCounter(), protocol.NewCounter(), logger)
	go hub.Run()

	// Initialize API routes
	api.InitRoutes(e, hub, &api.Handlers{
		Completer: completer,
		STT:       speechToText,
		TTS:       textToSpeech,
		Chats:     chats,
		Logger:    logger,
	})

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
