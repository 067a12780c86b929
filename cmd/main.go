package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"tts-relay/handler"
	"tts-relay/internal/domain"
	"tts-relay/internal/integrations/paramstore"
	"tts-relay/internal/integrations/telegram"
	"tts-relay/internal/integrations/tts"
	"tts-relay/internal/repository"
	"tts-relay/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	usersTable := mustEnv("USERS_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	policy := domain.QuotaPolicy{
		CharacterLimitPerUser: envInt("CHARACTER_LIMIT_PER_USER", domain.DefaultCharacterLimitPerUser),
		MaxMessageLength:      envInt("MAX_MESSAGE_LENGTH", domain.DefaultMaxMessageLength),
	}
	// 0 keeps the synthesis call unbounded, matching the baseline behavior.
	ttsTimeout := envInt("TTS_TIMEOUT_SECONDS", 0)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), usersTable)
	if err != nil {
		slog.Error("failed to create repository client", "err", err)
		os.Exit(1)
	}

	ttsOpts := []tts.Option{}
	if ttsTimeout > 0 {
		ttsOpts = append(ttsOpts, tts.WithHTTPClient(&http.Client{Timeout: time.Duration(ttsTimeout) * time.Second}))
	}
	ttsClient, err := tts.NewClient(ssmClient, paramPrefix, ttsOpts...)
	if err != nil {
		slog.Error("failed to create TTS client", "err", err)
		os.Exit(1)
	}
	tgClient, err := telegram.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create Telegram client", "err", err)
		os.Exit(1)
	}

	// ---- Core ----
	gateway, err := usecase.NewSynthesisGateway(ttsClient, slog.Default())
	if err != nil {
		slog.Error("failed to create synthesis gateway", "err", err)
		os.Exit(1)
	}
	dispatcher, err := usecase.NewDispatchService(store, store, gateway, policy, slog.Default())
	if err != nil {
		slog.Error("failed to create dispatch service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(dispatcher, tgClient, slog.Default())
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
