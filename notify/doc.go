// Package notify contains core.Notifier implementations: the Twilio
// messaging REST client, a retrying decorator, a logging notifier for
// development and a discarding notifier.
package notify
