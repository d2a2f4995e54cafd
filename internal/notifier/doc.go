// Package notifier forwards console change events to a Telegram chat.
//
// The service subscribes to the event bus, formats schedule, cluster and
// backup events, and hands them to a small queue drained by one worker. The
// worker is rate limited and retries failed sends with jittered backoff.
// Nothing is sent when the notifier is disabled, and a full queue drops the
// message instead of blocking the publisher.
package notifier
