package mqtt

import (
	"crypto/tls"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	defaultConnectTimeout   = 10 * time.Second
	defaultPublishTimeout   = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive        = 60 * time.Second
	maxQoS                  = 2
	tlsMinVersion           = tls.VersionTLS12
)

// buildClientOptions creates paho options from Options. It trusts
// paho's own URL parsing for scheme (tcp/ssl/mqtt/mqtts/ws/wss),
// host, port, and embedded user:pass credentials.
func buildClientOptions(opts Options) (*pahomqtt.ClientOptions, error) {
	pahoOpts := pahomqtt.NewClientOptions()
	pahoOpts.AddBroker(opts.URL)
	pahoOpts.SetClientID(opts.ClientID)

	pahoOpts.SetCleanSession(true)
	pahoOpts.SetAutoReconnect(true) // paho reconnects; handleConnect restores subscriptions
	pahoOpts.SetConnectTimeout(opts.ConnectTimeout)
	pahoOpts.SetKeepAlive(opts.KeepAlive)

	if isTLSURL(opts.URL) {
		pahoOpts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	if opts.AvailabilityTopic != "" {
		pahoOpts.SetWill(opts.AvailabilityTopic, string(opts.OfflinePayload), opts.AvailabilityQoS, true)
	}

	return pahoOpts, nil
}

func isTLSURL(rawURL string) bool {
	for _, scheme := range []string{"ssl://", "mqtts://", "wss://", "tls://"} {
		if len(rawURL) >= len(scheme) && rawURL[:len(scheme)] == scheme {
			return true
		}
	}
	return false
}
