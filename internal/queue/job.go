package queue

import (
	"context"
	"time"
)

// Job единица работы. Принадлежит очереди с момента Enqueue до успеха
// или окончательного отказа.
type Job struct {
	ID        string
	Kind      string
	Payload   any
	CreatedAt time.Time
	Attempts  int
}

// Handler обрабатывает задачу определённого вида. Ошибка означает повтор
// (пока не исчерпаны попытки). Внешние вызовы внутри обработчика обязаны
// иметь таймаут: очередь выполняет задачи строго по одной.
type Handler func(ctx context.Context, job *Job) error

// Stats снимок состояния очереди для мониторинга
type Stats struct {
	Pending   int    `json:"pending"`
	Delayed   int    `json:"delayed"`
	Draining  bool   `json:"draining"`
	Completed uint64 `json:"completed"`
	Retried   uint64 `json:"retried"`
	Failed    uint64 `json:"failed"`
	Discarded uint64 `json:"discarded"`
	Dropped   uint64 `json:"dropped"`
}
