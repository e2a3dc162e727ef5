package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Queue отправляет уведомления в фоне. Send не блокирует: при полной очереди сообщение теряется.
type Queue struct {
	next    Notifier
	log     *zap.Logger
	timeout time.Duration

	msgs chan string
	wg   sync.WaitGroup
	once sync.Once
	stop chan struct{}
}

func NewQueue(next Notifier, size int, log *zap.Logger) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{
		next:    next,
		log:     log.Named("notify"),
		timeout: 10 * time.Second,
		msgs:    make(chan string, size),
		stop:    make(chan struct{}),
	}
}

func (q *Queue) SendService(_ context.Context, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	select {
	case q.msgs <- msg:
	default:
		q.log.Warn("notification queue full, message dropped", zap.String("message", msg))
	}
	return nil
}

func (q *Queue) Start() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-q.stop:
				q.drain()
				return
			case msg := <-q.msgs:
				q.deliver(msg)
			}
		}
	}()
}

// Stop дожидается отправки уже поставленных сообщений.
func (q *Queue) Stop() {
	q.once.Do(func() { close(q.stop) })
	q.wg.Wait()
}

func (q *Queue) drain() {
	for {
		select {
		case msg := <-q.msgs:
			q.deliver(msg)
		default:
			return
		}
	}
}

func (q *Queue) deliver(msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if err := q.next.SendService(ctx, "%s", msg); err != nil {
		q.log.Warn("notification not delivered", zap.Error(err))
	}
}
