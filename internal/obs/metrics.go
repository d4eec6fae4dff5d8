package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	otpSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_sends_total",
			Help: "OTP send requests by outcome.",
		},
		[]string{"outcome"},
	)

	otpVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_otp_verifications_total",
			Help: "OTP verification attempts by outcome.",
		},
		[]string{"outcome"},
	)

	smsDispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_sms_dispatches_total",
			Help: "SMS dispatch results by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)

	reconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_identity_reconciliations_total",
			Help: "Identity resolutions by result (existing, new, reactivated).",
		},
		[]string{"result"},
	)

	credentialsMintedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_credentials_minted_total",
			Help: "Session credentials minted.",
		},
	)

	outboxEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_outbox_events_total",
			Help: "Identity outbox events by outcome (published, retried, dead_lettered).",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		otpSendsTotal,
		otpVerificationsTotal,
		smsDispatchesTotal,
		reconciliationsTotal,
		credentialsMintedTotal,
		outboxEventsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordOTPSend(outcome string)         { otpSendsTotal.WithLabelValues(outcome).Inc() }
func RecordOTPVerification(outcome string) { otpVerificationsTotal.WithLabelValues(outcome).Inc() }

func RecordSMSDispatch(backend, outcome string) {
	smsDispatchesTotal.WithLabelValues(backend, outcome).Inc()
}

func RecordReconciliation(result string) { reconciliationsTotal.WithLabelValues(result).Inc() }
func RecordCredentialMinted()            { credentialsMintedTotal.Inc() }
func RecordOutboxEvent(outcome string)   { outboxEventsTotal.WithLabelValues(outcome).Inc() }
