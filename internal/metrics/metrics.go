package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics содержит все метрики платформы. Имена фиксированы — на них
// построены дашборды и алерты.
type Metrics struct {
	service string

	// HTTP
	httpLatency  *prometheus.HistogramVec
	httpTotal    *prometheus.CounterVec
	httpInFlight *prometheus.GaugeVec
	httpErrors   *prometheus.CounterVec

	// Kafka
	kafkaProcessing *prometheus.HistogramVec
	kafkaLag        *prometheus.GaugeVec
	kafkaDLQ        *prometheus.CounterVec
	kafkaProduced   *prometheus.CounterVec
	kafkaConsumed   *prometheus.CounterVec
	kafkaDuplicates *prometheus.CounterVec

	// Склад
	oversellIncidents *prometheus.CounterVec
	reservations      *prometheus.CounterVec

	// Заказы (end-to-end)
	orderE2ELatency  *prometheus.HistogramVec
	stateTransitions *prometheus.CounterVec
	orderCompletion  *prometheus.CounterVec

	// Платежи
	paymentProcessing *prometheus.HistogramVec
	paymentTotal      *prometheus.CounterVec
}

// New создаёт метрики сервиса на default registerer.
func New(service string) *Metrics {
	return NewWithRegisterer(service, prometheus.DefaultRegisterer)
}

// NewWithRegisterer создаёт метрики на заданном registerer (для тестов).
func NewWithRegisterer(service string, registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		service: service,
		httpLatency: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.15, 0.2, 0.3, 0.5, 0.75, 1.0, 2.5, 5.0, 10.0},
		}, []string{"service", "endpoint", "method", "status_code"}),
		httpTotal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"service", "endpoint", "method", "status_code"}),
		httpInFlight: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "Number of HTTP requests currently being processed",
		}, []string{"service"}),
		httpErrors: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total HTTP errors (4xx and 5xx)",
		}, []string{"service", "endpoint", "error_type"}),
		kafkaProcessing: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "kafka_message_processing_seconds",
			Help:    "Time to process a single Kafka message",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"service", "topic", "event_type"}),
		kafkaLag: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "kafka_consumer_lag_messages",
			Help: "Number of messages consumer is behind",
		}, []string{"service", "topic", "partition", "consumer_group"}),
		kafkaDLQ: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "kafka_dlq_messages_total",
			Help: "Messages sent to dead-letter queue",
		}, []string{"service", "topic", "error_reason"}),
		kafkaProduced: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total messages produced to Kafka",
		}, []string{"service", "topic"}),
		kafkaConsumed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total messages consumed from Kafka",
		}, []string{"service", "topic", "consumer_group"}),
		kafkaDuplicates: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "kafka_duplicate_messages_total",
			Help: "Duplicate messages detected and skipped",
		}, []string{"service", "topic", "event_type"}),
		oversellIncidents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "inventory_oversell_incidents_total",
			Help: "Inventory oversell incidents (should always be 0)",
		}, []string{"sku_id", "warehouse"}),
		reservations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "inventory_reservations_total",
			Help: "Total inventory reservations",
		}, []string{"status"}),
		orderE2ELatency: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "order_e2e_latency_seconds",
			Help:    "End-to-end order completion latency (created to terminal)",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
		}, []string{"order_type"}),
		stateTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "order_state_transitions_total",
			Help: "Order state transitions",
		}, []string{"from_state", "to_state"}),
		orderCompletion: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "order_completion_total",
			Help: "Total orders by final status",
		}, []string{"status"}),
		paymentProcessing: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "payment_processing_seconds",
			Help:    "Payment processing latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}, []string{"payment_method", "status"}),
		paymentTotal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "payment_total",
			Help: "Total payments by status",
		}, []string{"status", "payment_method"}),
	}
}

// Service возвращает имя сервиса, от имени которого пишутся метрики.
func (m *Metrics) Service() string {
	return m.service
}

// ObserveHTTPRequest записывает латентность и счётчик HTTP-запроса.
func (m *Metrics) ObserveHTTPRequest(endpoint, method, statusCode string, duration time.Duration) {
	m.httpLatency.WithLabelValues(m.service, endpoint, method, statusCode).Observe(duration.Seconds())
	m.httpTotal.WithLabelValues(m.service, endpoint, method, statusCode).Inc()
}

// RecordHTTPError увеличивает счётчик ошибок (client_error / server_error).
func (m *Metrics) RecordHTTPError(endpoint, errorType string) {
	m.httpErrors.WithLabelValues(m.service, endpoint, errorType).Inc()
}

// HTTPInFlightInc увеличивает число запросов в обработке.
func (m *Metrics) HTTPInFlightInc() {
	m.httpInFlight.WithLabelValues(m.service).Inc()
}

// HTTPInFlightDec уменьшает число запросов в обработке.
func (m *Metrics) HTTPInFlightDec() {
	m.httpInFlight.WithLabelValues(m.service).Dec()
}

// ObserveMessageProcessing записывает время обработки сообщения из Kafka.
func (m *Metrics) ObserveMessageProcessing(topic, eventType string, duration time.Duration) {
	m.kafkaProcessing.WithLabelValues(m.service, topic, eventType).Observe(duration.Seconds())
}

// SetConsumerLag обновляет лаг консьюмера по партиции.
func (m *Metrics) SetConsumerLag(topic string, partition int32, group string, lag int64) {
	m.kafkaLag.WithLabelValues(m.service, topic, fmt.Sprintf("%d", partition), group).Set(float64(lag))
}

// RecordDLQMessage увеличивает счётчик отправок в dead-letter.
func (m *Metrics) RecordDLQMessage(topic, reason string) {
	m.kafkaDLQ.WithLabelValues(m.service, topic, reason).Inc()
}

// RecordProduced увеличивает счётчик опубликованных сообщений.
func (m *Metrics) RecordProduced(topic string) {
	m.kafkaProduced.WithLabelValues(m.service, topic).Inc()
}

// RecordConsumed увеличивает счётчик потреблённых сообщений.
func (m *Metrics) RecordConsumed(topic, group string) {
	m.kafkaConsumed.WithLabelValues(m.service, topic, group).Inc()
}

// RecordDuplicate увеличивает счётчик отброшенных дубликатов.
func (m *Metrics) RecordDuplicate(topic, eventType string) {
	m.kafkaDuplicates.WithLabelValues(m.service, topic, eventType).Inc()
}

// RecordOversellIncident фиксирует нарушение складского инварианта.
// Единственное приемлемое значение этого счётчика — ноль.
func (m *Metrics) RecordOversellIncident(skuID string) {
	m.oversellIncidents.WithLabelValues(skuID, "default").Inc()
}

// RecordReservation увеличивает счётчик резервов по исходу.
func (m *Metrics) RecordReservation(status string) {
	m.reservations.WithLabelValues(status).Inc()
}

// ObserveOrderE2ELatency записывает время от создания заказа до конечного статуса.
func (m *Metrics) ObserveOrderE2ELatency(duration time.Duration) {
	m.orderE2ELatency.WithLabelValues("standard").Observe(duration.Seconds())
}

// RecordStateTransition фиксирует переход статуса заказа.
func (m *Metrics) RecordStateTransition(from, to string) {
	m.stateTransitions.WithLabelValues(from, to).Inc()
}

// RecordOrderCompletion увеличивает счётчик заказов по финальному статусу.
func (m *Metrics) RecordOrderCompletion(status string) {
	m.orderCompletion.WithLabelValues(status).Inc()
}

// ObservePaymentProcessing записывает латентность обращения к платёжному шлюзу.
func (m *Metrics) ObservePaymentProcessing(method, status string, duration time.Duration) {
	m.paymentProcessing.WithLabelValues(method, status).Observe(duration.Seconds())
	m.paymentTotal.WithLabelValues(status, method).Inc()
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGaugeVec(registerer prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	collector := prometheus.NewGaugeVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.GaugeVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}
