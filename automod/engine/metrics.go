package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "automod_event_duration_sec",
	Help: "Total duration of automod event processing",
}, []string{"type"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_event_processed",
	Help: "Number of events processed",
}, []string{"type"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_event_errors",
	Help: "Number of events which failed processing",
}, []string{"type"})

var filterMatchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_filter_matches",
	Help: "Number of messages which matched a filter term, by term category",
}, []string{"category"})

var actionNewCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_new_actions",
	Help: "Number of moderation actions persisted, by action type",
}, []string{"type"})

var memberActionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_member_actions",
	Help: "Number of member state changes applied, by kind",
}, []string{"kind"})

var platformErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_platform_errors",
	Help: "Number of failed chat platform calls, by operation",
}, []string{"op"})

var commandCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_commands",
	Help: "Number of admin and user commands handled, by command and result",
}, []string{"command", "result"})

var notificationErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_notification_errors",
	Help: "Number of failed out-of-band admin notifications",
})
