package logfile

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
)

// ErrFileRemoved is returned by Follow when the followed file disappears.
var ErrFileRemoved = errors.New("log file removed")

// Follow calls fn for every complete line appended to path after the call,
// until ctx is cancelled. If backlog > 0, up to that many existing trailing
// lines are delivered first.
func Follow(ctx context.Context, path string, backlog int, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	// Watch before reading so an append racing the backlog scan still
	// produces an event.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch log file: %w", err)
	}

	if backlog > 0 {
		lines, offset, err := tailLines(f, backlog)
		if err != nil {
			return fmt.Errorf("failed to read log file: %w", err)
		}
		for _, line := range lines {
			fn(line)
		}
		// Resume right after the last complete line; anything past it is
		// delivered by the first drain.
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek log file: %w", err)
		}
	} else if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek log file: %w", err)
	}

	var partial []byte
	buf := make([]byte, 32*1024)
	drain := func() {
		for {
			n, readErr := f.Read(buf)
			if n > 0 {
				partial = append(partial, buf[:n]...)
				for {
					idx := bytes.IndexByte(partial, '\n')
					if idx < 0 {
						break
					}
					fn(string(partial[:idx]))
					partial = partial[idx+1:]
				}
			}
			if readErr != nil || n == 0 {
				return
			}
		}
	}

	drain()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Write != 0 {
				drain()
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				return ErrFileRemoved
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", werr)
		}
	}
}

// tailLines reads r to the end and returns at most n trailing complete
// lines together with the offset just past the last of them. Lines of any
// length are kept whole; a final line without a newline is not included.
func tailLines(r io.Reader, n int) ([]string, int64, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	lines := make([]string, 0, min(n, 256))
	var offset int64
	var line []byte

	for {
		chunk, err := br.ReadSlice('\n')
		line = append(line, chunk...)
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return lines, offset, nil
		case err != nil:
			return lines, offset, err
		}

		offset += int64(len(line))
		if len(lines) == n {
			lines = append(lines[:0], lines[1:]...)
		}
		lines = append(lines, string(bytes.TrimSuffix(line[:len(line)-1], []byte("\r"))))
		line = line[:0]
	}
}
