// Package mqtt is the broker transport for the connection supervisor.
//
// [Transport] holds one Eclipse Paho v5 client per broker connection. It
// does not reconnect on its own: when the connection drops it only
// clears its connected flag, and the supervisor in package connwatch
// re-runs association, trust installation and connect on its own flat
// schedule. Every connection uses a fresh client ID session (clean
// start) and is dialled over mutual TLS with the installed trust
// material, optionally through a SOCKS5 proxy.
//
// Inbound publishes arrive on Paho's goroutine. They are queued and
// handed to the caller only from [Transport.Poll], so message handlers
// run on the control goroutine.
package mqtt
