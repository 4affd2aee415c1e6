package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// NamedSink представляет канал доставки с именем для логов
type NamedSink struct {
	Name string
	Sink Sink
}

// DispatcherConfig задаёт ограничения асинхронной доставки
type DispatcherConfig struct {
	// MaxInFlight ограничивает, сколько уведомлений может доставляться одновременно
	MaxInFlight int64
	// Timeout ограничивает доставку одного уведомления во все каналы
	Timeout time.Duration
}

// Dispatcher рассылает уведомления по каналам в фоне.
// Доставка не чаще одного раза: при ошибке канала уведомление не повторяется.
type Dispatcher struct {
	sinks   []NamedSink
	sem     *semaphore.Weighted
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher создаёт диспетчер уведомлений
func NewDispatcher(cfg DispatcherConfig, log *zap.Logger, sinks ...NamedSink) *Dispatcher {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		sinks:   sinks,
		sem:     semaphore.NewWeighted(cfg.MaxInFlight),
		timeout: cfg.Timeout,
		log:     log,
		now:     time.Now,
	}
}

// Emit ставит уведомление в доставку и сразу возвращается.
// Если все слоты заняты или диспетчер закрыт, уведомление отбрасывается.
func (d *Dispatcher) Emit(ctx context.Context, n Notification) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now().UTC()
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn("уведомление отброшено: диспетчер остановлен", notificationFields(n)...)
		return
	}
	if !d.sem.TryAcquire(1) {
		d.mu.Unlock()
		d.log.Warn("уведомление отброшено: очередь доставки заполнена", notificationFields(n)...)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	// доставка не зависит от отмены запроса, который её вызвал
	deliveryCtx := context.WithoutCancel(ctx)

	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		d.deliver(deliveryCtx, n)
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	for _, s := range d.sinks {
		if err := d.emitSafe(ctx, s, n); err != nil {
			d.log.Warn("ошибка доставки уведомления",
				append(notificationFields(n), zap.String("sink", s.Name), zap.Error(err))...)
		}
	}
}

// emitSafe не даёт панике одного канала сорвать доставку в остальные
func (d *Dispatcher) emitSafe(ctx context.Context, s NamedSink, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("паника в канале уведомлений",
				append(notificationFields(n), zap.String("sink", s.Name), zap.Any("panic", r))...)
		}
	}()
	return s.Sink.Emit(ctx, n)
}

// Close перестаёт принимать уведомления и ждёт завершения текущих доставок
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func notificationFields(n Notification) []zap.Field {
	fields := []zap.Field{
		zap.String("notification_id", n.ID.String()),
		zap.String("user_id", n.UserID.String()),
		zap.String("type", string(n.Type)),
	}
	if swapID, ok := n.Metadata["swap_id"]; ok {
		fields = append(fields, zap.String("swap_id", swapID))
	}
	return fields
}
