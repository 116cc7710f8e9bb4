package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
)

type (
	// frame is one server-sent event as it arrived on the wire
	frame struct {
		Event string
		Data  []byte
	}

	// frameHandler receives each complete frame. Returning an error stops
	// the read loop
	frameHandler func(*frame) error
)

// errStopReading signals an orderly stop requested by the frame handler
var errStopReading = errors.New("stop reading")

// readFrames consumes a text/event-stream body, dispatching each complete
// frame to the handler. Comment lines and unknown fields are ignored, and
// multi-line data fields are joined with newlines. An incomplete trailing
// frame at EOF is discarded.
func readFrames(r io.Reader, handle frameHandler) error {
	br := bufio.NewReader(r)

	var event string
	var data [][]byte

	dispatch := func() error {
		if len(data) == 0 && event == "" {
			return nil
		}
		f := &frame{
			Event: event,
			Data:  bytes.Join(data, []byte("\n")),
		}
		event = ""
		data = nil
		return handle(f)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if err := dispatch(); err != nil {
				if errors.Is(err, errStopReading) {
					return nil
				}
				return err
			}
		case strings.HasPrefix(line, ":"):
			// comment, keep-alive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			d := strings.TrimPrefix(line[len("data:"):], " ")
			data = append(data, []byte(d))
		}
	}
}
