// Long-poll runner for deployments without the Lambda webhook: it pulls
// updates from Telegram and dispatches each one on its own goroutine, so a
// slow synthesis for one user never blocks the others.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"tts-relay/handler"
	"tts-relay/internal/domain"
	"tts-relay/internal/integrations/telegram"
	"tts-relay/internal/integrations/tts"
	"tts-relay/internal/repository"
	"tts-relay/internal/usecase"
)

const pollTimeoutSeconds = 30

func main() {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	paramPrefix := "/tts-relay"
	params, err := envParams(paramPrefix, map[string]string{
		"/bot-token":     "TELEGRAM_BOT_TOKEN",
		"/tts-api-key":   "TTS_API_KEY",
		"/tts-folder-id": "TTS_FOLDER_ID",
	})
	if err != nil {
		slog.Error("configuration incomplete", "err", err)
		os.Exit(1)
	}

	policy := domain.QuotaPolicy{
		CharacterLimitPerUser: envInt("CHARACTER_LIMIT_PER_USER", domain.DefaultCharacterLimitPerUser),
		MaxMessageLength:      envInt("MAX_MESSAGE_LENGTH", domain.DefaultMaxMessageLength),
	}
	ttsTimeout := envInt("TTS_TIMEOUT_SECONDS", 0)

	store, err := newStore()
	if err != nil {
		slog.Error("failed to create store", "err", err)
		os.Exit(1)
	}

	ttsOpts := []tts.Option{}
	if ttsTimeout > 0 {
		ttsOpts = append(ttsOpts, tts.WithHTTPClient(&http.Client{Timeout: time.Duration(ttsTimeout) * time.Second}))
	}
	ttsClient, err := tts.NewClient(params, paramPrefix, ttsOpts...)
	if err != nil {
		slog.Error("failed to create TTS client", "err", err)
		os.Exit(1)
	}
	tgClient, err := telegram.NewClient(params, paramPrefix)
	if err != nil {
		slog.Error("failed to create Telegram client", "err", err)
		os.Exit(1)
	}

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("polling for updates")
	poll(ctx, tgClient, h)
	slog.Info("shutting down")
}

// datastore is the combined ledger and state backend the runner wires into
// the dispatcher.
type datastore interface {
	usecase.Ledger
	usecase.StateStore
}

// newStore picks the backend: Redis when REDIS_ADDR is set, otherwise the
// in-memory store (quota then resets with the process).
func newStore() (datastore, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return repository.NewMemoryStore(), nil
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis not reachable at %s: %w", addr, err)
	}
	return repository.NewRedisStore(client)
}

// poll runs the getUpdates loop until ctx is canceled. Each update gets its
// own goroutine; in-flight dispatches are allowed to finish on shutdown.
func poll(ctx context.Context, tg *telegram.Client, h *handler.Handler) {
	var wg sync.WaitGroup
	var offset int64

	for ctx.Err() == nil {
		updates, err := tg.GetUpdates(ctx, offset, pollTimeoutSeconds)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Error("getUpdates failed", "err", err)
			time.Sleep(3 * time.Second)
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			msg := update.Message
			if msg == nil {
				continue
			}
			wg.Add(1)
			go func(m *telegram.Message) {
				defer wg.Done()
				// Detached from the poll context: a shutdown mid-synthesis
				// lets the request complete instead of canceling it.
				h.Process(context.Background(), m)
			}(msg)
		}
	}

	wg.Wait()
}

// staticParams is a paramstore-shaped getter over a fixed map, letting the
// Telegram and TTS clients work unchanged without AWS.
type staticParams map[string]string

func (p staticParams) GetParameter(_ context.Context, name string) (string, error) {
	v, ok := p[name]
	if !ok {
		return "", fmt.Errorf("parameter %q is not configured", name)
	}
	return v, nil
}

// envParams reads the required secrets from the environment, keyed under the
// parameter prefix the clients expect.
func envParams(prefix string, leafToEnv map[string]string) (staticParams, error) {
	params := make(staticParams, len(leafToEnv))
	for leaf, envKey := range leafToEnv {
		v := os.Getenv(envKey)
		if v == "" {
			return nil, errors.New("required environment variable is not set: " + envKey)
		}
		params[prefix+leaf] = v
	}
	return params, nil
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
