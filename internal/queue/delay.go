package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type delayedJob struct {
	job     *Job
	readyAt time.Time
	seq     uint64
}

// delayHeap min-heap по времени готовности, при равенстве по порядку добавления
type delayHeap []*delayedJob

func (h delayHeap) Len() int { return len(h) }

func (h delayHeap) Less(i, j int) bool {
	if h[i].readyAt.Equal(h[j].readyAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].readyAt.Before(h[j].readyAt)
}

func (h delayHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *delayHeap) Push(x any) { *h = append(*h, x.(*delayedJob)) }

func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// delayQueue отложенный планировщик повторов: одна горутина ждёт ближайшую
// задачу на таймере часов и передаёт её в fire, когда задержка истекла.
type delayQueue struct {
	clock clock.Clock
	fire  func(*Job)

	mu      sync.Mutex
	items   delayHeap
	seq     uint64
	stopped bool

	wake chan struct{}
}

func newDelayQueue(clk clock.Clock, fire func(*Job)) *delayQueue {
	return &delayQueue{
		clock: clk,
		fire:  fire,
		wake:  make(chan struct{}, 1),
	}
}

// schedule откладывает job на delay. false, если планировщик уже остановлен.
func (d *delayQueue) schedule(job *Job, delay time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}

	d.seq++
	item := &delayedJob{job: job, readyAt: d.clock.Now().Add(delay), seq: d.seq}
	heap.Push(&d.items, item)

	// Будим цикл только если новая задача стала ближайшей
	if d.items[0] == item {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	}
	return true
}

func (d *delayQueue) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// stop запрещает новые задачи и выбрасывает ожидающие. Возвращает их число.
func (d *delayQueue) stop() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	n := len(d.items)
	d.items = nil
	return n
}

// popReady снимает готовую задачу, либо возвращает время ожидания до ближайшей.
// wait < 0 означает пустую кучу.
func (d *delayQueue) popReady() (job *Job, wait time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.items) == 0 {
		return nil, -1
	}

	next := d.items[0]
	if wait = next.readyAt.Sub(d.clock.Now()); wait > 0 {
		return nil, wait
	}

	heap.Pop(&d.items)
	return next.job, 0
}

func (d *delayQueue) run(ctx context.Context) {
	for {
		job, wait := d.popReady()
		if job != nil {
			d.fire(job)
			continue
		}

		var (
			timer  *clock.Timer
			expire <-chan time.Time
		)
		if wait > 0 {
			timer = d.clock.Timer(wait)
			expire = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-d.wake:
		case <-expire:
		}

		if timer != nil {
			timer.Stop()
		}
	}
}
