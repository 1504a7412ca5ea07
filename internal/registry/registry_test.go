package registry

import (
	"testing"

	"github.com/eviqo/mqtt-bridge/internal/protocol"
)

func streamPage(streams ...protocol.Stream) protocol.DevicePage {
	return protocol.DevicePage{
		Dashboard: protocol.Dashboard{
			Widgets: []protocol.Widget{
				{Modules: []protocol.Module{{DisplayDataStreams: streams}}},
			},
		},
	}
}

func stream(id, pin, name string) protocol.Stream {
	s := protocol.Stream{ID: protocol.FlexString(id), Pin: protocol.FlexString(pin), Name: name}
	return s
}

func TestBuildIndexesByIDPinAndName(t *testing.T) {
	page := streamPage(
		stream("1", "5", "Status"),
		stream("2", "3", "Current"),
		stream("3", "7", "Voltage"),
	)

	r := Build(page, nil)

	if len(r.ByPin) != 3 {
		t.Errorf("len(ByPin) = %d, want 3", len(r.ByPin))
	}
	if len(r.ByID) != 3 {
		t.Errorf("len(ByID) = %d, want 3", len(r.ByID))
	}
	if len(r.ByName) != 3 {
		t.Errorf("len(ByName) = %d, want 3", len(r.ByName))
	}
	if s, ok := r.ByPin["3"]; !ok || s.Name != "Current" {
		t.Errorf("ByPin[3] = %+v, want Current", s)
	}
	if !r.HasPin("5") {
		t.Error("HasPin(5) = false, want true")
	}
	if r.HasPin("99") {
		t.Error("HasPin(99) = true, want false")
	}
}

type capturingLogger struct {
	warnings int
}

func (c *capturingLogger) Warn(string, ...any) { c.warnings++ }

func TestBuildToleratesDuplicatePinsAndNames(t *testing.T) {
	page := streamPage(
		stream("1", "5", "Status"),
		stream("2", "5", "Status"), // duplicate pin and name; later wins
	)

	logger := &capturingLogger{}
	r := Build(page, logger)

	if len(r.ByPin) != 1 {
		t.Errorf("len(ByPin) = %d, want 1", len(r.ByPin))
	}
	if got := r.ByPin["5"].ID; got != protocol.FlexString("2") {
		t.Errorf("ByPin[5].ID = %q, want \"2\" (later stream should win)", got)
	}
	if logger.warnings == 0 {
		t.Error("expected at least one duplicate warning")
	}
}

func TestBuildEmptyPageProducesEmptyMaps(t *testing.T) {
	r := Build(protocol.DevicePage{}, nil)
	if len(r.ByPin) != 0 || len(r.ByID) != 0 || len(r.ByName) != 0 {
		t.Errorf("expected empty maps, got %+v", r)
	}
}
