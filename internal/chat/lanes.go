package chat

import (
	"errors"
	"log/slog"
	"sync"
)

var ErrLanesClosed = errors.New("chat: lanes closed")

// Lanes runs jobs in per-user FIFO order. Jobs of different users run
// concurrently, at most maxConcurrency at a time.
type Lanes struct {
	mu     sync.Mutex
	queues map[string][]func()
	sem    chan struct{}
	wg     sync.WaitGroup
	closed bool
}

func NewLanes(maxConcurrency int) *Lanes {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Lanes{
		queues: make(map[string][]func()),
		sem:    make(chan struct{}, maxConcurrency),
	}
}

// Submit queues job behind the user's earlier jobs.
func (l *Lanes) Submit(userID string, job func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLanesClosed
	}

	queue, running := l.queues[userID]
	l.queues[userID] = append(queue, job)
	if !running {
		l.wg.Add(1)
		go l.drain(userID)
	}
	return nil
}

// drain runs the user's jobs until the queue is empty. A user has a map
// entry exactly while a drain goroutine owns the lane.
func (l *Lanes) drain(userID string) {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		queue := l.queues[userID]
		if len(queue) == 0 {
			delete(l.queues, userID)
			l.mu.Unlock()
			return
		}
		job := queue[0]
		l.queues[userID] = queue[1:]
		l.mu.Unlock()

		l.run(userID, job)
	}
}

func (l *Lanes) run(userID string, job func()) {
	l.sem <- struct{}{}
	defer func() {
		<-l.sem
		if r := recover(); r != nil {
			slog.Error("chat: lane job panicked", "user_id", userID, "panic", r)
		}
	}()
	job()
}

// Active returns the number of users with queued or running jobs.
func (l *Lanes) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues)
}

// Close stops accepting jobs and waits for queued ones to finish.
func (l *Lanes) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.wg.Wait()
}
