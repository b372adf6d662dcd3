package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoCachesWithinTTL(t *testing.T) {
	r := New[int]("test", 8, time.Minute)

	var calls int32
	fn := func() (int, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := r.Do("key", fn)
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		if v != 42 {
			t.Fatalf("Do returned %d, want 42", v)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 resolution for repeated lookups, got %d", n)
	}
}

func TestDoExpiresAfterTTL(t *testing.T) {
	r := New[int]("test", 8, 30*time.Millisecond)

	var calls int32
	fn := func() (int, error) {
		atomic.AddInt32(&calls, 1)
		return 1, nil
	}

	r.Do("key", fn)
	time.Sleep(60 * time.Millisecond)
	r.Do("key", fn)

	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected re-resolution after TTL, got %d calls", n)
	}
}

func TestDoDeduplicatesConcurrentLookups(t *testing.T) {
	r := New[int]("test", 8, time.Minute)

	var calls int32
	release := make(chan struct{})
	fn := func() (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := r.Do("key", fn)
			if err != nil {
				t.Errorf("Do failed: %v", err)
			}
			results[i] = v
		}(i)
	}

	// Let every goroutine reach the resolver before releasing the call.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected concurrent lookups to share 1 resolution, got %d", n)
	}
	for i, v := range results {
		if v != 7 {
			t.Errorf("goroutine %d got %d, want 7", i, v)
		}
	}
}

func TestDoFailureNotCached(t *testing.T) {
	r := New[int]("test", 8, time.Minute)

	var calls int32
	boom := errors.New("upstream down")
	fn := func() (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, boom
	}

	if _, err := r.Do("key", fn); !errors.Is(err, boom) {
		t.Fatalf("expected resolution error, got %v", err)
	}
	if _, err := r.Do("key", fn); !errors.Is(err, boom) {
		t.Fatalf("expected second resolution error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("a failed resolution must not be cached, got %d calls", n)
	}
	if _, ok := r.Last("key"); ok {
		t.Error("Last must not report a value after only failures")
	}
}

func TestDoFailurePropagatesToWaiters(t *testing.T) {
	r := New[int]("test", 8, time.Minute)

	boom := errors.New("upstream down")
	release := make(chan struct{})
	fn := func() (int, error) {
		<-release
		return 0, boom
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Do("key", fn)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Errorf("waiter %d got %v, want the shared error", i, err)
		}
	}
}

func TestLastSurvivesTTL(t *testing.T) {
	r := New[string]("test", 8, 20*time.Millisecond)

	r.Do("key", func() (string, error) { return "stale-ok", nil })
	time.Sleep(40 * time.Millisecond)

	if _, ok := r.entries.Get("key"); ok {
		t.Fatal("live entry should have expired")
	}
	v, ok := r.Last("key")
	if !ok || v != "stale-ok" {
		t.Errorf("Last = %q, %v; want stale-ok, true", v, ok)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	r := New[int]("test", 8, time.Minute)

	a, _ := r.Do("a", func() (int, error) { return 1, nil })
	b, _ := r.Do("b", func() (int, error) { return 2, nil })
	if a != 1 || b != 2 {
		t.Errorf("got a=%d b=%d", a, b)
	}
}
