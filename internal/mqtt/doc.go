// Package mqtt announces finished onboarding profiles on an MQTT broker
// so downstream matchers can pick them up without polling the HTTP API.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. On every
// (re-)connect it publishes a retained birth message ("online") to the
// availability topic and a retained info document describing this
// instance. A will message flips the availability topic to "offline" on
// unexpected disconnects.
//
// Each completed session is published once, QoS 1 and not retained, to
// <topic_prefix>/profiles/completed.
package mqtt
