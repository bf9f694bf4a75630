// Package metrics exposes Prometheus metrics for the watcher.
package metrics

import (
	"net/http"

	gometrics "github.com/docker/go-metrics"
)

var (
	Polls            gometrics.Counter
	PollFailures     gometrics.Counter
	PollDuration     gometrics.Timer
	SubmissionsSeen  gometrics.Counter
	Matches          gometrics.Counter
	Blocked          gometrics.Counter
	Subscriptions    gometrics.Gauge
	CompileErrors    gometrics.Counter
	QueryCache       gometrics.LabeledCounter
	Notifications    gometrics.LabeledCounter
	WebSocketClients gometrics.Gauge
)

func init() {
	ns := gometrics.NewNamespace("subscription_watcher", "", nil)
	Polls = ns.NewCounter("feed_polls", "The number of times the listing feed was polled")
	PollFailures = ns.NewCounter("feed_poll_failures", "The number of feed polls that failed")
	PollDuration = ns.NewTimer("feed_poll", "The number of seconds each feed poll takes")
	SubmissionsSeen = ns.NewCounter("submissions_seen", "The number of new submissions checked against subscriptions")
	Matches = ns.NewCounter("matches", "The number of subscription matches delivered")
	Blocked = ns.NewCounter("blocked", "The number of subscription matches suppressed by a blocklist")
	Subscriptions = ns.NewGauge("subscriptions", "The number of registered subscriptions", gometrics.Total)
	CompileErrors = ns.NewCounter("query_compile_errors", "The number of queries rejected by the compiler")
	QueryCache = ns.NewLabeledCounter("query_cache", "Compiled query cache lookups", "result")
	Notifications = ns.NewLabeledCounter("notifications", "Notifications sent per notifier", "notifier", "result")
	WebSocketClients = ns.NewGauge("websocket_clients", "The number of connected websocket clients", gometrics.Total)
	gometrics.Register(ns)
}

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return gometrics.Handler()
}
