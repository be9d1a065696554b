package ring

import (
	"context"
	"testing"
	"time"
)

func newTestWorker(t *testing.T, name string, fd int32) *Worker {
	t.Helper()
	w, err := NewWorker(Config{
		Name:              name,
		SQSize:            64,
		CQSize:            64,
		backendForTesting: newFakeBackend(fd),
	})
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	return w
}

func runWorker(t *testing.T, w *Worker) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		w.Deactivate()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("worker %s did not stop", w.name)
		}
	}
}

func TestNopCompletes(t *testing.T) {
	w := newTestWorker(t, "w1", 10)
	stop := runWorker(t, w)
	defer stop()

	c := w.Nop()
	if c.Res != 0 {
		t.Fatalf("Nop() Res = %d, want 0", c.Res)
	}
	if err := c.Err(); err != nil {
		t.Fatalf("Nop() Err() = %v, want nil", err)
	}
}

func TestConcurrentSubmitsEachGetOwnCompletion(t *testing.T) {
	w := newTestWorker(t, "w2", 11)
	stop := runWorker(t, w)
	defer stop()

	const n = 50
	results := make(chan Completion, n)
	for i := 0; i < n; i++ {
		go func() { results <- w.Nop() }()
	}
	for i := 0; i < n; i++ {
		c := <-results
		if c.Res != 0 {
			t.Fatalf("completion %d: Res = %d, want 0", i, c.Res)
		}
	}
}

func TestRunOnExecutesJobOnWorkerLoop(t *testing.T) {
	w := newTestWorker(t, "w3", 12)
	stop := runWorker(t, w)
	defer stop()

	ran := make(chan bool, 1)
	w.RunOn(func() { ran <- true })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("RunOn job never executed")
	}
}

func TestTransferRunsJobOnDestinationWorker(t *testing.T) {
	src := newTestWorker(t, "src", 20)
	dst := newTestWorker(t, "dst", 21)
	stopSrc := runWorker(t, src)
	defer stopSrc()
	stopDst := runWorker(t, dst)
	defer stopDst()

	result := make(chan int, 1)
	Transfer(src, dst, func() { result <- 42 })

	select {
	case v := <-result:
		if v != 42 {
			t.Fatalf("transferred job result = %d, want 42", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("transferred job never ran")
	}
}
