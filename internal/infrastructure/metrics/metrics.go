// Package metrics expone los contadores Prometheus del motor de facturación.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "salones"

var (
	// LifecycleOperations cuenta las operaciones del ciclo de vida por resultado.
	LifecycleOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "lifecycle_operations_total",
		Help:      "Operaciones del ciclo de vida de suscripciones por operación y resultado.",
	}, []string{"op", "outcome"})

	// ProcessorDuration latencia de las llamadas al procesador de pagos.
	ProcessorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "processor_call_duration_seconds",
		Help:      "Duración de las llamadas al procesador de pagos en segundos.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"call", "outcome"})

	// DriftReports cuenta las divergencias detectadas entre el snapshot local y el procesador.
	DriftReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "drift_reports_total",
		Help:      "Divergencias registradas por origen (operación del ciclo de vida o conciliación).",
	}, []string{"source"})

	// GateDecisions cuenta las decisiones del control de acceso por código.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "entitlement",
		Name:      "decisions_total",
		Help:      "Decisiones del control de acceso por tipo de comprobación y código.",
	}, []string{"check", "code"})

	// SMSDecisions cuenta las decisiones de envío de SMS.
	SMSDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sms",
		Name:      "send_decisions_total",
		Help:      "Decisiones de envío por SMS por prioridad y resultado (sms/email).",
	}, []string{"priority", "channel"})
)

// Resultados usados como etiqueta outcome.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeReplayed = "replayed"
	OutcomeDrift    = "drift"
)
