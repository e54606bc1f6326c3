package runner

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// Worker is a long-running background task: the exporter loop, the alert
// evaluator, the journal worker.
type Worker interface {
	Start(ctx context.Context) error
}

// HTTPServer is the subset of *http.Server the runner needs.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Runner starts workers and HTTP servers together and stops them together:
// the first failure or a cancelled context winds everything down, with a
// bounded graceful shutdown for the servers.
type Runner struct {
	mu      sync.Mutex
	workers []Worker
	servers []HTTPServer
	wg      sync.WaitGroup
	errCh   chan error

	shutdownTimeout time.Duration
}

// New creates a Runner.
func New() *Runner {
	return &Runner{
		errCh:           make(chan error, 1), // first error wins, later ones are dropped
		shutdownTimeout: 5 * time.Second,
	}
}

// AddWorker registers a Worker to be started by Run.
func (r *Runner) AddWorker(worker Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers = append(r.workers, worker)
}

// AddHTTPServer registers an HTTPServer to be started by Run.
func (r *Runner) AddHTTPServer(srv HTTPServer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers = append(r.servers, srv)
}

// Run starts everything registered and blocks until the context is
// cancelled, a worker or server fails, or all of them finish on their own.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	workers := append([]Worker(nil), r.workers...)
	servers := append([]HTTPServer(nil), r.servers...)
	r.mu.Unlock()

	for _, w := range workers {
		r.startWorker(ctx, w)
	}
	for _, srv := range servers {
		r.startServer(ctx, srv)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-r.errCh:
		return err
	case <-done:
		return nil
	}
}

func (r *Runner) startWorker(ctx context.Context, worker Worker) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.reportError(err)
		}
	}()
}

func (r *Runner) startServer(ctx context.Context, srv HTTPServer) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				r.reportError(err)
			}
		case err := <-serveErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.reportError(err)
			}
		}
	}()
}

func (r *Runner) reportError(err error) {
	select {
	case r.errCh <- err:
	default:
	}
}
