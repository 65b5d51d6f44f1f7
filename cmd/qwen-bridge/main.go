// qwen-bridge exposes the proprietary Qwen chat API behind an
// OpenAI-compatible chat-completions surface.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"

	"qwen-bridge/internal/config"
	"qwen-bridge/internal/proxy"
	"qwen-bridge/internal/recorder"
	"qwen-bridge/internal/router"
	"qwen-bridge/internal/session"
	"qwen-bridge/internal/upstream"
)

func main() {
	container := dig.New()

	providers := []any{
		config.Load,
		newSessionStores,
		newUpstreamClient,
		newRecorder,
		newProxyServer,
		router.New,
	}
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			logrus.Fatalf("Failed to build container: %v", err)
		}
	}

	if err := container.Invoke(run); err != nil {
		logrus.Fatalf("Server exited with error: %v", err)
	}
}

// stores bundles the session store with the request-log sink, which may be
// backed by different systems.
type stores struct {
	dig.Out

	Sessions session.Store
	Logs     session.RequestLogStore
}

// newSessionStores selects the session backend: Redis when configured, the
// relational store otherwise. Request logs always land in the database.
func newSessionStores(cfg *config.Config) (stores, error) {
	dbStore, err := session.NewGormStore(cfg.DatabaseDSN)
	if err != nil {
		return stores{}, err
	}

	var sessions session.Store = dbStore
	if cfg.RedisDSN != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisDSN, cfg.SessionTTL)
		if err != nil {
			return stores{}, err
		}
		logrus.Info("Using Redis session store")
		sessions = redisStore
	}

	return stores{Sessions: sessions, Logs: dbStore}, nil
}

func newUpstreamClient(cfg *config.Config) (*upstream.Client, error) {
	return upstream.NewClient(upstream.Options{
		BaseURL:        cfg.QwenBaseURL,
		AuthToken:      cfg.QwenAuthToken,
		RequestTimeout: cfg.RequestTimeout,
	})
}

func newRecorder(logs session.RequestLogStore) *recorder.Recorder {
	return recorder.New(recorder.DefaultConfig(), logs, nil)
}

func newProxyServer(client *upstream.Client, sessions session.Store, rec *recorder.Recorder, cfg *config.Config) *proxy.Server {
	return proxy.NewServer(client, sessions, rec, cfg)
}

func run(cfg *config.Config, engine *gin.Engine, rec *recorder.Recorder) error {
	cfg.SetupLogging()

	rec.Start()
	defer rec.Stop()

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		logrus.WithField("addr", cfg.Addr()).Info("qwen-bridge listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-quit:
		logrus.WithField("signal", sig.String()).Info("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("Graceful shutdown failed: %v", err)
		return err
	}

	logrus.Info("Server stopped")
	return nil
}
