package pulse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sound-priority/daemon/internal/mixer"
)

// event is one line of `pactl subscribe` output, e.g.
// "Event 'new' on sink-input #42".
type event struct {
	kind     string
	facility string
}

func parseEvent(line string) (event, bool) {
	line = strings.TrimSpace(line)
	rest, ok := strings.CutPrefix(line, "Event '")
	if !ok {
		return event{}, false
	}
	kind, rest, ok := strings.Cut(rest, "' on ")
	if !ok {
		return event{}, false
	}
	facility, _, _ := strings.Cut(rest, " #")
	if kind == "" || facility == "" {
		return event{}, false
	}
	return event{kind: kind, facility: facility}, true
}

type subscription struct {
	stream io.ReadCloser
	done   chan struct{}
}

func subscribe(runner Runner, dispatch func(event), log *slog.Logger) (*subscription, error) {
	stream, err := runner.Stream(context.Background(), "subscribe")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mixer.ErrNotificationRegistration, err)
	}
	sub := &subscription{stream: stream, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		scanner := bufio.NewScanner(stream)
		for scanner.Scan() {
			if ev, ok := parseEvent(scanner.Text()); ok {
				dispatch(ev)
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warn("pulse.subscribe_ended", "err", err)
		}
	}()

	return sub, nil
}

func (s *subscription) close() {
	_ = s.stream.Close()
	<-s.done
}
