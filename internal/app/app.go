// Package app связывает хранилища, шину событий, фоновые воркеры и
// HTTP-адаптеры в работающие сервисы. По одной функции Run на сервис.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/health"
)

const readHeaderTimeout = 5 * time.Second

// serve поднимает публичный API и служебный сервер, запускает фоновые
// задачи и блокируется до отмены ctx. Порядок остановки: перестать
// принимать HTTP → остановить consumers и воркеры → закрыть подключения.
func (i *infra) serve(ctx context.Context, api http.Handler, jobs ...func(context.Context)) error {
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	var wg sync.WaitGroup
	for _, job := range jobs {
		if job == nil {
			continue
		}
		wg.Add(1)
		go func(job func(context.Context)) {
			defer wg.Done()
			job(workerCtx)
		}(job)
	}

	apiServer := &http.Server{
		Addr:              i.cfg.HTTPAddr,
		Handler:           api,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	opsServer := &http.Server{
		Addr:              i.cfg.MetricsAddr,
		Handler:           i.opsMux(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 2)
	go listen(apiServer, serveErr)
	go listen(opsServer, serveErr)

	i.logger.WithFields(log.Fields{
		"http_addr":    i.cfg.HTTPAddr,
		"metrics_addr": i.cfg.MetricsAddr,
	}).Info("service started")

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	i.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), i.cfg.ShutdownTimeout)
	defer cancel()
	shutdownHTTP(shutdownCtx, apiServer, i.logger)
	shutdownHTTP(shutdownCtx, opsServer, i.logger)

	cancelWorkers()
	if !waitGroupTimeout(&wg, i.cfg.ShutdownTimeout) {
		i.logger.Warn("background jobs did not stop within shutdown timeout")
	}

	i.logger.Info("service stopped")
	return nil
}

// opsMux собирает служебные маршруты: метрики и probes.
func (i *infra) opsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", i.health.Handler())
	mux.HandleFunc("GET /ready", i.health.ReadyHandler())
	mux.HandleFunc("GET /live", health.LiveHandler)
	return mux
}

func listen(server *http.Server, serveErr chan<- error) {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		serveErr <- err
		return
	}
	serveErr <- nil
}

func shutdownHTTP(ctx context.Context, server *http.Server, logger *log.Entry) {
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).WithField("addr", server.Addr).Warn("http server shutdown failed")
	}
}

// waitGroupTimeout ждёт wg не дольше timeout. false — дождаться не удалось.
func waitGroupTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
