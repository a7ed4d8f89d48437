// Package queue фоновая in-memory очередь задач с повторами.
//
// Задачи выполняются строго по одной в порядке постановки. Упавшая задача
// повторяется не более MaxAttempts раз с линейной задержкой BaseDelay*attempt;
// после задержки она встаёт в начало очереди, какой та будет в этот момент.
// Очередь не переживает рестарт процесса: всё, что не успело выполниться
// до остановки, теряется.
package queue

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
	ErrNoHandler   = errors.New("no handler registered for job kind")
)

// Значения по умолчанию
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultCapacity    = 1000
	DefaultJobTimeout  = 15 * time.Second
)

type Config struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	Capacity        int           // максимум задач в ожидании, повторы не учитываются
	JobTimeout      time.Duration // общий таймаут одного запуска обработчика
	DrainOnShutdown bool
}

// Queue single-flight FIFO очередь. Создаётся один раз на процесс.
type Queue struct {
	cfg    Config
	logger *zap.Logger
	clock  clock.Clock

	mu       sync.Mutex
	pending  *list.List
	handlers map[string]Handler
	closed   bool

	// Флаг активного drain-цикла, меняется только через CAS/Store
	draining atomic.Bool
	drainWG  sync.WaitGroup

	delayed   *delayQueue
	startOnce sync.Once
	stopDelay context.CancelFunc
	delayDone chan struct{}

	// Базовый контекст обработчиков, отменяется при остановке
	ctx    context.Context
	cancel context.CancelFunc

	completed atomic.Uint64
	retried   atomic.Uint64
	failed    atomic.Uint64
	discarded atomic.Uint64
	dropped   atomic.Uint64
}

// New создаёт очередь. clk == nil означает реальные часы.
func New(cfg Config, logger *zap.Logger, clk clock.Clock) *Queue {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}

	q := &Queue{
		cfg:       cfg,
		logger:    logger,
		clock:     clk,
		pending:   list.New(),
		handlers:  make(map[string]Handler),
		delayDone: make(chan struct{}),
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.delayed = newDelayQueue(clk, q.requeue)

	return q
}

// Register назначает обработчик для вида задач. Вызывать до первых Enqueue.
func (q *Queue) Register(kind string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = h
}

// Start запускает планировщик повторов
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		ctx, q.stopDelay = context.WithCancel(ctx)
		go func() {
			defer close(q.delayDone)
			q.delayed.run(ctx)
		}()
		q.logger.Info("Очередь задач запущена",
			zap.Int("max_attempts", q.cfg.MaxAttempts),
			zap.Duration("base_delay", q.cfg.BaseDelay),
			zap.Int("capacity", q.cfg.Capacity),
		)
	})
}

// Enqueue ставит задачу в конец очереди и запускает drain, если он не активен.
// Никогда не блокируется на выполнении задач.
func (q *Queue) Enqueue(kind string, payload any) (string, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: q.clock.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrQueueClosed
	}
	if q.pending.Len() >= q.cfg.Capacity {
		q.dropped.Add(1)
		q.logger.Warn("Очередь задач заполнена, задача потеряна",
			zap.String("kind", kind),
			zap.Int("capacity", q.cfg.Capacity),
		)
		return "", ErrQueueFull
	}

	q.pending.PushBack(job)
	q.startDrainLocked()

	return job.ID, nil
}

// requeue вызывается планировщиком, когда задержка повтора истекла
func (q *Queue) requeue(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.dropped.Add(1)
		q.logger.Warn("Очередь остановлена, повтор задачи отброшен",
			zap.String("job_id", job.ID),
			zap.String("kind", job.Kind),
		)
		return
	}

	q.pending.PushFront(job)
	q.startDrainLocked()
}

// startDrainLocked запускает drain-цикл, если он не активен. Вызывается под q.mu.
func (q *Queue) startDrainLocked() {
	if !q.draining.CompareAndSwap(false, true) {
		return
	}
	q.drainWG.Add(1)
	go q.drain()
}

func (q *Queue) drain() {
	defer q.drainWG.Done()

	for {
		job := q.next()
		if job == nil {
			return
		}
		q.process(job)
	}
}

// next снимает голову очереди. На пустой очереди сбрасывает флаг draining
// под тем же мьютексом, что и Enqueue, поэтому новая задача не потеряется.
func (q *Queue) next() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.pending.Front()
	if front == nil || q.ctx.Err() != nil {
		q.draining.Store(false)
		return nil
	}
	return q.pending.Remove(front).(*Job)
}

func (q *Queue) handler(kind string) Handler {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.handlers[kind]
}

func (q *Queue) process(job *Job) {
	job.Attempts++

	h := q.handler(job.Kind)
	if h == nil {
		q.discarded.Add(1)
		q.logger.Error("Неизвестный тип задачи, задача отброшена",
			zap.String("job_id", job.ID),
			zap.String("kind", job.Kind),
			zap.Error(ErrNoHandler),
		)
		return
	}

	err := q.run(h, job)
	if err == nil {
		q.completed.Add(1)
		q.logger.Debug("Задача выполнена",
			zap.String("job_id", job.ID),
			zap.String("kind", job.Kind),
			zap.Int("attempt", job.Attempts),
		)
		return
	}

	if job.Attempts < q.cfg.MaxAttempts {
		delay := q.cfg.BaseDelay * time.Duration(job.Attempts)
		if q.delayed.schedule(job, delay) {
			q.retried.Add(1)
			q.logger.Warn("Задача завершилась ошибкой, будет повтор",
				zap.String("job_id", job.ID),
				zap.String("kind", job.Kind),
				zap.Int("attempt", job.Attempts),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			return
		}
		q.dropped.Add(1)
		q.logger.Warn("Планировщик повторов остановлен, задача отброшена",
			zap.String("job_id", job.ID),
			zap.String("kind", job.Kind),
			zap.Error(err),
		)
		return
	}

	q.failed.Add(1)
	q.logger.Error("Задача не выполнена после всех попыток",
		zap.String("job_id", job.ID),
		zap.String("kind", job.Kind),
		zap.Int("attempts", job.Attempts),
		zap.Error(err),
	)
}

// run выполняет обработчик с таймаутом; паника считается ошибкой
func (q *Queue) run(h Handler, job *Job) (err error) {
	ctx, cancel := context.WithTimeout(q.ctx, q.cfg.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return h(ctx, job)
}

// Stats возвращает текущее состояние очереди
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	pending := q.pending.Len()
	q.mu.Unlock()

	return Stats{
		Pending:   pending,
		Delayed:   q.delayed.len(),
		Draining:  q.draining.Load(),
		Completed: q.completed.Load(),
		Retried:   q.retried.Load(),
		Failed:    q.failed.Load(),
		Discarded: q.discarded.Load(),
		Dropped:   q.dropped.Load(),
	}
}

// Shutdown останавливает приём задач и отбрасывает отложенные повторы.
// С DrainOnShutdown ждёт, пока drain-цикл разберёт очередь, но не дольше ctx.
// Задачи, не успевшие выполниться, теряются.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	var abandoned int
	if !q.cfg.DrainOnShutdown {
		abandoned = q.pending.Len()
		q.pending.Init()
	}
	q.mu.Unlock()

	if q.stopDelay != nil {
		q.stopDelay()
		<-q.delayDone
	}
	abandoned += q.delayed.stop()

	q.logger.Info("Остановка очереди задач...", zap.Int("abandoned", abandoned))
	q.dropped.Add(uint64(abandoned))

	done := make(chan struct{})
	go func() {
		q.drainWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info("Очередь задач остановлена")
		return nil
	case <-ctx.Done():
		q.cancel()
		q.logger.Warn("Очередь задач остановлена до завершения обработки", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}
