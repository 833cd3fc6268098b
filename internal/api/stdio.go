package api

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// maxLineBytes bounds one line-delimited message on stdin.
const maxLineBytes = 4 << 20

// ServeStdio reads newline-delimited JSON-RPC messages from in and writes
// each response as one line to out. Requests are answered concurrently;
// writes are serialized. It returns when in is exhausted or ctx is done,
// after in-flight requests finish. A read blocked on in does not hold up
// the return on cancellation.
func ServeStdio(ctx context.Context, d *Dispatcher, in io.Reader, out io.Writer) error {
	var (
		wg       sync.WaitGroup
		writeMu  sync.Mutex
		writeErr error
	)
	defer wg.Wait()

	done := make(chan struct{})
	defer close(done)
	lines, readErr := readLines(in, done)

	write := func(resp []byte) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if writeErr != nil {
			return
		}
		if _, err := out.Write(append(resp, '\n')); err != nil {
			writeErr = err
			d.logger.Error("failed to write stdio response", "error", err)
		}
	}

	for {
		var msg []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				return ctx.Err()
			}
			msg = line
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if resp := d.HandleMessage(ctx, msg); resp != nil {
				write(resp)
			}
		}()
	}
}

// readLines scans in on its own goroutine so the caller can stop waiting on
// it. Blank lines are dropped. The error channel receives the scanner's
// result once lines is closed.
func readLines(in io.Reader, done <-chan struct{}) (<-chan []byte, <-chan error) {
	lines := make(chan []byte)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			select {
			case lines <- bytes.Clone(line):
			case <-done:
				return
			}
		}
		errc <- scanner.Err()
	}()

	return lines, errc
}
