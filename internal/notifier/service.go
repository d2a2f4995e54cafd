package notifier

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"dbconsole/internal/eventbus"
	rtsup "dbconsole/internal/runtime/supervisor"
	"dbconsole/pkg/logx"

	"golang.org/x/time/rate"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
)

const historySize = 100

// Service turns bus events into chat messages. It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	sender  Sender
	bus     eventbus.Bus
	log     logx.Logger

	queue chan string
	sup   *rtsup.Supervisor
	unsub func()

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender Sender, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, bus: bus, log: log.With(logx.String("comp", "notifier"))}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && s.sender != nil
}

// Apply swaps the config. Enabling or disabling takes effect on the next
// Start or Stop.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start subscribes to the bus and starts the send worker. It is a no-op when
// disabled or already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil || !s.cfg.Enabled || s.sender == nil {
		return
	}
	s.queue = make(chan string, s.cfg.QueueSize)
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	q := s.queue

	if s.bus != nil {
		events, unsub := s.bus.Subscribe(s.cfg.QueueSize)
		s.unsub = unsub
		s.sup.Go("events", func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case e, ok := <-events:
					if !ok {
						return nil
					}
					text, ok := Format(e)
					if !ok {
						continue
					}
					if err := s.enqueue(text); err != nil {
						s.log.Warn("notification dropped", logx.String("event", e.Type), logx.Err(err))
					}
				}
			}
		})
	}
	s.sup.GoRestart("worker", func(c context.Context) error {
		s.worker(c, q)
		return c.Err()
	}, rtsup.WithRestartBackoff(time.Second, 30*time.Second))
	s.log.Info("notifier started")
}

// Stop unsubscribes and stops the worker. Queued messages are sent until ctx
// is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup, unsub := s.queue, s.sup, s.unsub
	s.queue, s.sup, s.unsub = nil, nil, nil
	s.mu.Unlock()
	if q == nil {
		return
	}
	if unsub != nil {
		unsub()
	}
	close(q)
	done := make(chan struct{})
	go func() {
		_ = sup.Wait(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
		<-done
	}
	s.log.Info("notifier stopped")
}

// Notify queues text for sending.
func (s *Service) Notify(text string) error {
	return s.enqueue(text)
}

func (s *Service) enqueue(text string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return ErrDisabled
	}
	select {
	case s.queue <- text:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Service) worker(ctx context.Context, q <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-q:
			if !ok {
				return
			}
			s.send(ctx, text)
		}
	}
}

func (s *Service) send(ctx context.Context, text string) {
	s.mu.Lock()
	cfg, lim, sender := s.cfg, s.limiter, s.sender
	s.mu.Unlock()

	var err error
	for attempt := 0; attempt <= cfg.RetryMax; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(retryDelay(cfg.RetryBase, attempt))
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return
			}
		}
		if werr := lim.Wait(ctx); werr != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = sender.Send(callCtx, cfg.ChatID, cfg.ThreadID, text)
		cancel()
		if err == nil {
			break
		}
		s.log.Debug("notify send failed", logx.Int("attempt", attempt+1), logx.Err(err))
	}
	if err != nil {
		s.log.Warn("notification not delivered", logx.Err(err))
	}
	s.record(text, err)
}

func (s *Service) record(text string, err error) {
	it := HistoryItem{At: time.Now(), Text: text}
	if err != nil {
		it.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

// History returns the most recent delivery attempts, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

// retryDelay doubles base per attempt up to 16x, with 0.7..1.3 jitter.
func retryDelay(base time.Duration, attempt int) time.Duration {
	d := base << min(attempt-1, 4)
	return time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
}
