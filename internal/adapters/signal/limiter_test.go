package signal

import (
	"testing"
	"time"
)

func TestSendRateLimiter(t *testing.T) {
	rl := NewSendRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !rl.Allow("alice") {
			t.Fatalf("attempt %d denied inside the limit", i+1)
		}
	}
	if rl.Allow("alice") {
		t.Fatal("attempt over the limit allowed")
	}
	// Independent windows per user.
	if !rl.Allow("bob") {
		t.Fatal("second user throttled by first user's window")
	}

	rl.Forget("alice")
	if !rl.Allow("alice") {
		t.Fatal("Forget did not reset the window")
	}
}

func TestSendRateLimiterWindowExpiry(t *testing.T) {
	rl := NewSendRateLimiter(1, 10*time.Millisecond)
	if !rl.Allow("alice") {
		t.Fatal("first attempt denied")
	}
	if rl.Allow("alice") {
		t.Fatal("second attempt inside the window allowed")
	}
	time.Sleep(20 * time.Millisecond)
	if !rl.Allow("alice") {
		t.Fatal("attempt after window expiry denied")
	}
}
