package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-relay/internal/events"
	"github.com/spec-kit/helpdesk-relay/internal/service"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

// AuditWorker moves delivery rows off the request path.
type AuditWorker struct {
	audit  *service.AuditService
	logger *zap.Logger
	queue  chan events.Event
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// StartAuditWorker subscribes to relay outcomes and starts the writer goroutine.
func StartAuditWorker(dispatcher events.Dispatcher, audit *service.AuditService, logger *zap.Logger, queueSize int) *AuditWorker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	w := &AuditWorker{
		audit:  audit,
		logger: logger,
		queue:  make(chan events.Event, queueSize),
		done:   make(chan struct{}),
	}
	if dispatcher == nil || audit == nil {
		close(w.done)
		return w
	}
	for _, t := range events.RelayTypes() {
		dispatcher.Subscribe(t, w.enqueue)
	}

	w.wg.Add(1)
	go w.run()
	return w
}

func (w *AuditWorker) enqueue(_ context.Context, event events.Event) error {
	select {
	case <-w.done:
		w.logger.Warn("audit worker stopped; dropping delivery", zap.String("delivery_id", event.ID))
		return nil
	default:
	}
	select {
	case w.queue <- event:
	default:
		w.logger.Warn("audit queue full; dropping delivery", zap.String("delivery_id", event.ID))
	}
	return nil
}

func (w *AuditWorker) run() {
	defer w.wg.Done()
	for {
		select {
		case event := <-w.queue:
			w.write(event)
		case <-w.done:
			for {
				select {
				case event := <-w.queue:
					w.write(event)
				default:
					return
				}
			}
		}
	}
}

func (w *AuditWorker) write(event events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := w.audit.Record(ctx, event); err != nil {
		w.logger.Error("audit write failed", zap.String("delivery_id", event.ID), zap.Error(err))
	}
}

// Stop flushes queued rows and waits for the writer to exit.
func (w *AuditWorker) Stop() {
	w.once.Do(func() {
		select {
		case <-w.done:
		default:
			close(w.done)
		}
	})
	w.wg.Wait()
}
