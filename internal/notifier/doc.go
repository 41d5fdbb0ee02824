// Package notifier delivers device alerts, such as a fan failure, to
// whoever needs to act on them: the console log and, optionally, an
// ntfy.sh topic.
package notifier
