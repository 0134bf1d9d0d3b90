package clock

import (
	"sync"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	before := time.Now()
	result := Real.Now()
	after := time.Now()

	if result.Before(before) || result.After(after) {
		t.Errorf("Now() returned %v, expected between %v and %v", result, before, after)
	}
}

func TestMockClock_Advance(t *testing.T) {
	mockTime := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	mock := NewMockClock(mockTime)

	first := mock.Now()
	mock.Advance(time.Hour)
	second := mock.Now()

	if !first.Equal(mockTime) {
		t.Errorf("Before Advance, Now() = %v, expected %v", first, mockTime)
	}
	if expected := mockTime.Add(time.Hour); !second.Equal(expected) {
		t.Errorf("After Advance, Now() = %v, expected %v", second, expected)
	}
	if got := mock.Since(mockTime); got != time.Hour {
		t.Errorf("Since = %v, expected 1h", got)
	}
	if got := mock.Until(mockTime.Add(2 * time.Hour)); got != time.Hour {
		t.Errorf("Until = %v, expected 1h", got)
	}
}

func TestMockClock_Set(t *testing.T) {
	mock := NewMockClock(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC))

	newTime := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	mock.Set(newTime)

	if result := mock.Now(); !result.Equal(newTime) {
		t.Errorf("After Set, Now() = %v, expected %v", result, newTime)
	}
}

func TestMockClock_ConcurrentAccess(t *testing.T) {
	mock := NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			mock.Advance(time.Second)
		}()
		go func() {
			defer wg.Done()
			_ = mock.Now()
		}()
	}
	wg.Wait()

	if got := mock.Since(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); got != 50*time.Second {
		t.Errorf("expected 50s advanced, got %v", got)
	}
}

func TestExpired(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	mock := NewMockClock(now)

	tests := []struct {
		name     string
		deadline time.Time
		want     bool
	}{
		{"zero never expires", time.Time{}, false},
		{"future", now.Add(time.Minute), false},
		{"exactly now", now, true},
		{"past", now.Add(-time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expired(mock, tt.deadline); got != tt.want {
				t.Errorf("Expired(%v) = %v, want %v", tt.deadline, got, tt.want)
			}
		})
	}
}

func TestOrReal(t *testing.T) {
	if OrReal(nil) != Real {
		t.Error("OrReal(nil) should return the real clock")
	}
	mock := NewMockClock(time.Now())
	if OrReal(mock) != Clock(mock) {
		t.Error("OrReal should keep a non-nil clock")
	}
}
