package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"sync"
	"syscall"
	"time"

	"github.com/rdss-io/rdss/config"
	"github.com/rdss-io/rdss/internal/dss"
	"github.com/rdss-io/rdss/internal/logging"
	"github.com/rdss-io/rdss/internal/memaccount"
	"github.com/rdss-io/rdss/internal/ring"
	"github.com/rdss-io/rdss/internal/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to the rdss INI config file (defaults built in if empty)")
		verbose    = flag.Bool("v", false, "Verbose (debug-level) logging")
		logLevel   = flag.String("loglevel", "", "Explicit log level: debug, info, warn, error (overrides -v)")
	)
	flag.Parse()
	if *configPath == "" && flag.NArg() > 0 {
		*configPath = flag.Arg(0)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	if *logLevel != "" {
		logConfig.Level = logging.ParseLevel(*logLevel)
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	logger.Info("starting rdss", "config", cfg.String())

	accountant := memaccount.New()
	service := dss.New(cfg.AsServiceConfig(), dss.SystemClock{}, accountant)
	clients := server.NewClientManager()
	service.ConnectedClients = clients.Count

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dataWorker, err := ring.NewWorker(ring.Config{
		Name:             "dss",
		EnableSubmitPoll: cfg.SQPoll,
		MaxRegisteredFDs: cfg.MaxDirectFDsPerExr,
		EnableBufferRing: cfg.UseRingBuffer,
		SubmitBatchSize:  cfg.SubmitBatchSize,
		WaitBatchSize:    cfg.WaitBatchSize,
		CPU:              -1,
	})
	if err != nil {
		logger.Error("failed to create data worker", "error", err)
		os.Exit(1)
	}

	ioWorkers := make([]*ring.Worker, cfg.ClientExecutors)
	for i := range ioWorkers {
		w, err := ring.NewWorker(ring.Config{
			Name:             fmt.Sprintf("cli_exr_%d", i),
			MaxRegisteredFDs: cfg.MaxDirectFDsPerExr,
			EnableBufferRing: cfg.UseRingBuffer,
			SubmitBatchSize:  cfg.SubmitBatchSize,
			WaitBatchSize:    cfg.WaitBatchSize,
			CPU:              -1,
		})
		if err != nil {
			logger.Error("failed to create I/O worker", "index", i, "error", err)
			os.Exit(1)
		}
		ioWorkers[i] = w
	}

	listener, err := server.Listen(int(cfg.Port), dataWorker)
	if err != nil {
		logger.Error("failed to listen", "port", cfg.Port, "error", err)
		os.Exit(1)
	}

	var workerWG sync.WaitGroup
	runWorker := func(w *ring.Worker) {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			if err := w.Run(ctx); err != nil {
				logger.Error("worker loop exited with error", "worker", w.Name(), "error", err)
			}
		}()
	}
	runWorker(dataWorker)
	for _, w := range ioWorkers {
		runWorker(w)
	}

	go service.RunCron(ctx, dataWorker)

	var connWG sync.WaitGroup
	go acceptLoop(ctx, listener, ioWorkers, dataWorker, service, clients, accountant, &connWG, logger)

	logger.Info("rdss listening", "port", cfg.Port, "client_executors", cfg.ClientExecutors)

	// Set up SIGUSR1 handler for stack trace dumps, matching the teacher's
	// cmd/ublk-mem/main.go.
	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			dumpStacks(logger)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-service.Done():
		logger.Info("shutdown requested via SHUTDOWN command")
	}

	cancel()
	if err := listener.Close(); err != nil {
		logger.Warn("error closing listener", "error", err)
	}

	cleanupDone := make(chan struct{})
	go func() {
		connWG.Wait()
		workerWG.Wait()
		close(cleanupDone)
	}()

	select {
	case <-cleanupDone:
		logger.Info("clean shutdown complete")
	case <-time.After(2 * time.Second):
		logger.Info("cleanup timeout, forcing exit")
	}

	os.Exit(0)
}

// acceptLoop accepts connections on listener, round-robins each new
// connection across ioWorkers, and hands it to a fresh server.Client
// whose transfer function bounces command execution onto dataWorker, per
// spec.md 4.H's transfer(io_worker -> data_worker); invoke;
// transfer(data_worker -> io_worker) sequence. Rejects connections past
// maxclients by closing the fd immediately, matching spec.md 4.F's
// backpressure rule.
func acceptLoop(
	ctx context.Context,
	listener *server.Listener,
	ioWorkers []*ring.Worker,
	dataWorker *ring.Worker,
	service *dss.Service,
	clients *server.ClientManager,
	accountant *memaccount.Accountant,
	wg *sync.WaitGroup,
	logger *logging.Logger,
) {
	maxClients := service.Config().MaxClients
	next := 0
	for {
		ioWorker := ioWorkers[next%len(ioWorkers)]
		next++

		conn, err := listener.Accept(ctx, ioWorker)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("accept failed", "error", err)
			continue
		}

		if maxClients > 0 && clients.Count() >= maxClients {
			conn.Close()
			continue
		}

		transfer := server.WorkerTransfer(ioWorker, dataWorker)
		client := server.NewClient(conn, transfer, service.Invoke, accountant)
		fd := conn.FD()
		clients.Add(fd, client)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer clients.Remove(fd)
			client.Run(ctx)
		}()
	}
}

func dumpStacks(logger *logging.Logger) {
	logger.Info("=== GOROUTINE STACK TRACE DUMP ===")
	buf := make([]byte, 1024*1024)
	n := runtime.Stack(buf, true)
	fmt.Fprintf(os.Stderr, "\n=== FULL GOROUTINE STACK DUMP ===\n%s\n=== END STACK DUMP ===\n\n", buf[:n])

	filename := fmt.Sprintf("rdss-stacks-%d.txt", time.Now().Unix())
	f, err := os.Create(filename)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "Goroutine stack dump at %s\nProcess ID: %d\n\n", time.Now().Format(time.RFC3339), os.Getpid())
	f.Write(buf[:n])
	fmt.Fprintf(f, "\n\n=== GOROUTINE PROFILE ===\n")
	pprof.Lookup("goroutine").WriteTo(f, 2)
	logger.Info("stack trace written to file", "file", filename)
}
