package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grantledger_transaction_transitions_total",
		Help: "Transaction status transitions by target status.",
	}, []string{"status"})

	integrityChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grantledger_integrity_checks_total",
		Help: "Integrity sweeps by result.",
	}, []string{"result"})
)
