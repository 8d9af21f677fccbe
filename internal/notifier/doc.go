// Package notifier delivers fired reminders to their owner chats.
//
// Deliveries are queued and sent by a small worker pool behind a token-bucket
// rate limit, with bounded retry on transport errors. The pipeline is
// best-effort on purpose: once the scheduler marks a reminder fired it stays
// fired, so a delivery that still fails after retries is logged and dropped
// rather than replayed.
//
// # Transport
//
// The service delegates delivery to a kit.Adapter implementation (e.g. the
// Telegram adapter), so the scheduler never depends on a specific messaging
// platform.
package notifier
