package casserver

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	registry      *prometheus.Registry
	logins        *prometheus.CounterVec
	refreshes     prometheus.Counter
	registrations *prometheus.CounterVec
	u2fLogins     *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cas",
			Name:      "login_attempts_total",
			Help:      "Primary credential submissions by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cas",
			Name:      "actuator_refresh_total",
			Help:      "Calls to the actuator refresh endpoint.",
		}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cas",
			Name:      "u2f_registrations_total",
			Help:      "U2F device registration ceremonies by result.",
		}, []string{"result"}),
		u2fLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cas",
			Name:      "u2f_authentications_total",
			Help:      "U2F authentication ceremonies by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.logins, m.refreshes, m.registrations, m.u2fLogins)
	return m
}
