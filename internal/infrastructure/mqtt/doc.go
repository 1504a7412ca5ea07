// Package mqtt wraps eclipse/paho.mqtt.golang for the bridge's single
// broker connection.
//
// Topic naming and payload shapes are owned by the discovery and
// bridge packages; this package only knows how to connect, publish,
// subscribe, and restore subscriptions across reconnects.
package mqtt
