package application

import (
	"sync"
	"time"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/stretchr/testify/mock"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(now time.Time) *fixedClock {
	return &fixedClock{now: now}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func mockAnyContext() interface{} {
	return mock.Anything
}

func staticToken(token string) func() string {
	return func() string { return token }
}

func sessionOf(id string) func() domain.SessionID {
	return func() domain.SessionID { return domain.SessionID(id) }
}
