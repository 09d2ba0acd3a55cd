// Command pipe-bench drives one writer and one reader goroutine against a
// pipe.Pipe and reports achieved throughput, for sanity-checking the ring
// buffer's condition-variable blocking under load outside of go test -bench.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jjacobson3/go-journal/internal/logging"
	"github.com/jjacobson3/go-journal/pipe"
)

func main() {
	var (
		capacity  = flag.Int("capacity", 4096, "pipe ring buffer size in bytes")
		chunkSize = flag.Int("chunk", 4096, "bytes written per Write call")
		total     = flag.Int64("total", 256<<20, "total bytes to stream")
		timeout   = flag.Duration("timeout", 30*time.Second, "abort if the run does not finish in this long")
		verbose   = flag.Bool("v", false, "log every stall and close at debug level")
	)
	flag.Parse()

	r, w := pipe.Alloc(*capacity)
	if *verbose {
		logConfig := logging.DefaultConfig()
		logConfig.Level = logging.LevelDebug
		logger := logging.NewLogger(logConfig)
		r.SetLogger(logger)
		w.SetLogger(logger)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	readDone := make(chan int64, 1)
	go func() {
		var read int64
		buf := make([]byte, *chunkSize)
		for {
			n, err := r.Read(ctx, buf)
			read += int64(n)
			if n == 0 || err != nil {
				readDone <- read
				return
			}
		}
	}()

	chunk := make([]byte, *chunkSize)
	start := time.Now()
	var written int64
	for written < *total {
		n, err := w.Write(ctx, chunk)
		written += int64(n)
		if err != nil {
			fmt.Fprintf(os.Stderr, "write failed after %d bytes: %v\n", written, err)
			break
		}
	}
	w.Close()

	read := <-readDone
	elapsed := time.Since(start)

	snap := w.Metrics().Snapshot()
	fmt.Printf("wrote %d bytes, read %d bytes in %v (%.1f MB/s)\n",
		written, read, elapsed, float64(written)/elapsed.Seconds()/(1<<20))
	fmt.Printf("write calls: %d (full stalls: %d)  read calls: %d (empty stalls: %d)\n",
		snap.WriteCalls, snap.FullStalls, snap.ReadCalls, snap.EmptyStalls)
}
