// Package notifier delivers desktop notifications.
//
// Notifications are queued and shown by a single worker in FIFO order, so the
// order callers enqueue in is the order the user sees. A token bucket keeps
// bursts from flooding the OS notification daemon.
//
// # Sinks
//
// Delivery is delegated to a Sink (see package sink): beeep, the freedesktop
// D-Bus service on Linux, an optional Telegram mirror, or the log.
//
// # History
//
// The service keeps a small in-memory ring of recent deliveries and, when
// storage is enabled, appends each one to the delivery store.
package notifier
