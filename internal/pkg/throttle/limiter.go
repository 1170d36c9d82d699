// Package throttle 提供最小間隔節流器，用於限制連續的上游 AI 呼叫
package throttle

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrThrottled 非阻塞模式下間隔未到
var ErrThrottled = errors.New("request rate limit exceeded")

// Clock 可注入的時間來源
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock 系統時間
var RealClock Clock = realClock{}

// Limiter 最小間隔節流器
//
// 每次呼叫預約下一個可用時段，時段之間至少相隔 interval。
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	clock    Clock
	next     time.Time
}

// New 創建節流器；interval <= 0 時不限制
func New(interval time.Duration, clock Clock) *Limiter {
	if clock == nil {
		clock = RealClock
	}
	return &Limiter{interval: interval, clock: clock}
}

// Interval 目前設定的最小間隔
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// reserve 預約時段並回傳需等待的時間
func (l *Limiter) reserve() (time.Time, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	slot := now
	if l.next.After(now) {
		slot = l.next
	}
	l.next = slot.Add(l.interval)
	return slot, slot.Sub(now)
}

// release 取消尚未使用的預約
func (l *Limiter) release(slot time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 只有最後一筆預約可以退回，否則會與後面的預約重疊
	if l.next.Equal(slot.Add(l.interval)) {
		l.next = slot
	}
}

// Wait 阻塞直到輪到本次呼叫，或 ctx 取消
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.interval <= 0 {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	slot, wait := l.reserve()
	if wait <= 0 {
		return nil
	}

	select {
	case <-l.clock.After(wait):
		return nil
	case <-ctx.Done():
		l.release(slot)
		return ctx.Err()
	}
}

// Allow 非阻塞檢查；間隔已過時記錄本次呼叫並回傳 true
func (l *Limiter) Allow() bool {
	if l == nil || l.interval <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if l.next.After(now) {
		return false
	}
	l.next = now.Add(l.interval)
	return true
}
