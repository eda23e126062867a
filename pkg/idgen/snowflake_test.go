package idgen

import (
	"strconv"
	"testing"
	"time"
)

// fixedClock for deterministic testing
type fixedClock struct {
	currentTime int64
}

func (c *fixedClock) Now() int64 {
	return c.currentTime
}

func TestSnowflake_Next(t *testing.T) {
	clock := &fixedClock{currentTime: Epoch + 1000}
	sf, err := New(1, clock)
	if err != nil {
		t.Fatalf("Failed to create Snowflake: %v", err)
	}

	id1, err := sf.Next()
	if err != nil {
		t.Fatalf("Failed to generate ID: %v", err)
	}
	id2, err := sf.Next()
	if err != nil {
		t.Fatalf("Failed to generate ID: %v", err)
	}

	if id1 >= id2 {
		t.Errorf("IDs must be unique and monotonic increasing, got %d then %d", id1, id2)
	}
}

func TestSnowflake_NextID_DecimalString(t *testing.T) {
	sf, err := New(1, &fixedClock{currentTime: Epoch + 1000})
	if err != nil {
		t.Fatalf("Failed to create Snowflake: %v", err)
	}

	id, err := sf.NextID()
	if err != nil {
		t.Fatalf("Failed to generate ID: %v", err)
	}

	parsed, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		t.Fatalf("NextID must return a decimal string, got %q: %v", id, err)
	}
	if parsed <= 0 {
		t.Errorf("ID must be positive, got %d", parsed)
	}
}

func TestSnowflake_NodeIDTooLarge(t *testing.T) {
	_, err := New(1024, nil) // max is 1023
	if err != ErrNodeIDTooLarge {
		t.Errorf("Expected ErrNodeIDTooLarge, got %v", err)
	}
}

func TestSnowflake_ClockMovedBack(t *testing.T) {
	clock := &fixedClock{currentTime: Epoch + 2000}
	sf, _ := New(1, clock)

	_, _ = sf.Next()

	clock.currentTime = Epoch + 1000 // Move clock back
	_, err := sf.Next()

	if err != ErrClockMovedBack {
		t.Errorf("Expected ErrClockMovedBack, got %v", err)
	}
}

func TestSnowflake_Concurrency(t *testing.T) {
	sf, _ := New(1, &SystemClock{})
	numGoroutines := 50
	numIDs := 500
	ids := make(chan int64, numGoroutines*numIDs)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			for j := 0; j < numIDs; j++ {
				id, err := sf.Next()
				if err != nil {
					t.Errorf("Concurrent generation failed: %v", err)
				}
				ids <- id
			}
		}()
	}

	seen := make(map[int64]bool)
	expected := numGoroutines * numIDs
	for i := 0; i < expected; i++ {
		select {
		case id := <-ids:
			if seen[id] {
				t.Errorf("Duplicate ID generated: %d", id)
			}
			seen[id] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("Timeout waiting for IDs")
		}
	}
}
