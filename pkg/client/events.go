package client

import (
	"bufio"
	"context"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/agencycal/calib/pkg/events"
)

// SubscribeEvents streams server events until ctx is cancelled or the server
// closes the stream. The returned channel is closed when the stream ends.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan events.Event, error) {
	resp, err := c.Stream(ctx, "/api/events")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to subscribe to events")
	}

	ch := make(chan events.Event, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var (
			name string
			data []string
		)
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				if name == "" && len(data) == 0 {
					continue
				}
				ev := events.Event{Name: name, Data: []byte(strings.Join(data, "\n"))}
				name, data = "", nil
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			case strings.HasPrefix(line, ":"):
				// comment / keep-alive
			default:
				field, value, _ := strings.Cut(line, ":")
				value = strings.TrimPrefix(value, " ")
				switch field {
				case "event":
					name = value
				case "data":
					data = append(data, value)
				}
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Debug("event stream ended")
		}
	}()

	return ch, nil
}
