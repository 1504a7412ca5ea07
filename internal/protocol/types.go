package protocol

import (
	"encoding/json"
	"fmt"
)

// FlexString unmarshals a JSON string or number into a string. The
// vendor's device page document has been observed to encode numeric
// fields (stream ids, pins) inconsistently across endpoints.
type FlexString string

// UnmarshalJSON accepts both a JSON string and a bare JSON number.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("protocol: FlexString: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// Device is one entry of the DEVICE_QUERY enumeration response.
type Device struct {
	DeviceID     FlexString `json:"deviceId"`
	Name         string     `json:"name"`
	ProductName  string     `json:"productName"`
	HardwareInfo struct {
		Version string `json:"version"`
		Build   string `json:"build"`
	} `json:"hardwareInfo"`
}

// Stream is one displayDataStream leaf of a device page: a single
// telemetry or control channel.
type Stream struct {
	ID            FlexString `json:"id"`
	Pin           FlexString `json:"pin"`
	Name          string     `json:"name"`
	Visualization struct {
		Value string `json:"value"`
	} `json:"visualization"`
	Units string `json:"units,omitempty"`
}

// Module groups streams within a widget.
type Module struct {
	DisplayDataStreams []Stream `json:"displayDataStreams"`
}

// Widget groups modules within a dashboard.
type Widget struct {
	Modules []Module `json:"modules"`
}

// Dashboard is the top level of a device page.
type Dashboard struct {
	Widgets []Widget `json:"widgets"`
}

// DevicePage is the full DEVICE_PAGE response for one device.
type DevicePage struct {
	Dashboard Dashboard `json:"dashboard"`
}

// Streams flattens the page's widget/module tree into its leaf
// streams, in document order.
func (p DevicePage) Streams() []Stream {
	var streams []Stream
	for _, w := range p.Dashboard.Widgets {
		for _, m := range w.Modules {
			streams = append(streams, m.DisplayDataStreams...)
		}
	}
	return streams
}
