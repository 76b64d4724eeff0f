package telegram

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var updatesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_telegram_updates_received",
	Help: "Number of telegram updates received, by how they were routed",
}, []string{"kind"})
