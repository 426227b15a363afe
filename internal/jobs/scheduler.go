package jobs

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker gates a scheduled run so only one process executes it. The in-memory
// queue is per-process; the lock matters when several instances poll the same
// database.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// NopLocker always grants the lock (single-instance deployments).
type NopLocker struct{}

func (NopLocker) TryLock(context.Context, string, time.Duration) (bool, error) { return true, nil }

// RedisLocker takes the lock with SET NX EX; the TTL releases it if the
// holder dies mid-run.
type RedisLocker struct {
	Client *redis.Client
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.Client.SetNX(ctx, key, "1", ttl).Result()
}

// Scheduler fires Run on a fixed interval. A run that outlasts the interval
// suppresses the next tick instead of stacking a second run on top.
type Scheduler struct {
	Name     string
	Interval time.Duration
	Lock     Locker
	Run      func(ctx context.Context)

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

func NewScheduler(name string, interval time.Duration, lock Locker, run func(ctx context.Context)) *Scheduler {
	if lock == nil {
		lock = NopLocker{}
	}
	return &Scheduler{
		Name:     name,
		Interval: interval,
		Lock:     lock,
		Run:      run,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		log.Printf("scheduler %s: previous run still in progress, skipping tick", s.Name)
		return
	}
	go func() {
		defer s.running.Store(false)
		ok, err := s.Lock.TryLock(ctx, "sched:"+s.Name, s.Interval)
		if err != nil {
			log.Printf("scheduler %s: lock: %v", s.Name, err)
			return
		}
		if !ok {
			return
		}
		s.Run(ctx)
	}()
}
