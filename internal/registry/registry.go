// Package registry builds the per-device pin/name/id stream indexes a
// device page exposes, per the vendor's displayDataStreams tree.
package registry

import (
	"github.com/eviqo/mqtt-bridge/internal/protocol"
)

// Logger is satisfied by *logging.Logger and anything shaped like it.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Registry indexes one device page's streams three ways: by database
// id, by human name, and by runtime pin. Widget updates and commands
// key off pin; discovery document generation keys off name.
type Registry struct {
	ByID   map[string]protocol.Stream
	ByName map[string]protocol.Stream
	ByPin  map[string]protocol.Stream
}

// Build indexes every stream in page.Streams() into a fresh Registry.
// Duplicate pins or names are tolerated: the later stream in document
// order wins and a warning is logged, since the vendor page has been
// observed to contain benign duplicates.
func Build(page protocol.DevicePage, logger Logger) Registry {
	if logger == nil {
		logger = noopLogger{}
	}

	streams := page.Streams()
	r := Registry{
		ByID:   make(map[string]protocol.Stream, len(streams)),
		ByName: make(map[string]protocol.Stream, len(streams)),
		ByPin:  make(map[string]protocol.Stream, len(streams)),
	}

	for _, s := range streams {
		id := string(s.ID)
		if id != "" {
			if _, exists := r.ByID[id]; exists {
				logger.Warn("duplicate stream id in device page, overwriting", "id", id, "name", s.Name)
			}
			r.ByID[id] = s
		}

		if s.Name != "" {
			if _, exists := r.ByName[s.Name]; exists {
				logger.Warn("duplicate stream name in device page, overwriting", "name", s.Name, "pin", s.Pin)
			}
			r.ByName[s.Name] = s
		}

		pin := string(s.Pin)
		if pin != "" {
			if _, exists := r.ByPin[pin]; exists {
				logger.Warn("duplicate stream pin in device page, overwriting", "pin", pin, "name", s.Name)
			}
			r.ByPin[pin] = s
		}
	}

	return r
}

// HasPin reports whether the registry has a stream at the given pin.
// Used to refuse subscribing the charging switch to an unexpected pin.
func (r Registry) HasPin(pin string) bool {
	_, ok := r.ByPin[pin]
	return ok
}
