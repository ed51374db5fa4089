package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lava_referral"

// 结果标签
const (
	ResultRecorded = "recorded"
	ResultMatched  = "matched"
	ResultAttrib   = "attributed"
	ResultError    = "error"
)

// ReferralMetrics 推荐归因业务指标
type ReferralMetrics struct {
	visits      *prometheus.CounterVec
	matches     *prometheus.CounterVec
	conversions *prometheus.CounterVec
	sweepRuns   *prometheus.CounterVec
	sweptRows   prometheus.Counter
}

var (
	referralOnce    sync.Once
	referralMetrics *ReferralMetrics
)

// Referral 返回注册在默认 Registerer 上的单例
func Referral() *ReferralMetrics {
	referralOnce.Do(func() {
		referralMetrics = NewReferralMetrics(prometheus.DefaultRegisterer)
	})
	return referralMetrics
}

// NewReferralMetrics 在指定 Registerer 上注册指标
func NewReferralMetrics(registerer prometheus.Registerer) *ReferralMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &ReferralMetrics{
		visits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_total",
			Help:      "Referral visit record attempts by result.",
		}, []string{"result"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Referral visit match attempts by outcome.",
		}, []string{"outcome"}),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Referral conversion attempts by outcome.",
		}, []string{"outcome"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Expired visit sweep runs by trigger.",
		}, []string{"trigger"}),
		sweptRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_visits_total",
			Help:      "Expired pending visits deleted by the sweeper.",
		}),
	}
	registerer.MustRegister(m.visits, m.matches, m.conversions, m.sweepRuns, m.sweptRows)
	return m
}

// ObserveVisit 记录访问写入结果
func (m *ReferralMetrics) ObserveVisit(result string) {
	if m == nil {
		return
	}
	m.visits.WithLabelValues(labelOrUnknown(result)).Inc()
}

// ObserveMatch 记录匹配结果
func (m *ReferralMetrics) ObserveMatch(outcome string) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(labelOrUnknown(outcome)).Inc()
}

// ObserveConversion 记录转化结果
func (m *ReferralMetrics) ObserveConversion(outcome string) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(labelOrUnknown(outcome)).Inc()
}

// ObserveSweep 记录一次清理
func (m *ReferralMetrics) ObserveSweep(trigger string, deleted int64) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(labelOrUnknown(trigger)).Inc()
	if deleted > 0 {
		m.sweptRows.Add(float64(deleted))
	}
}

func labelOrUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
