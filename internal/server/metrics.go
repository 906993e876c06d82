package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// chatOutcomes counts terminal pipeline states so operators can tell
// refusals, missing-index periods and upstream outages apart at a glance.
var chatOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chat_requests_total",
	Help: "Chat pipeline requests by terminal outcome.",
}, []string{"outcome"})
