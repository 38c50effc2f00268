package domain

// HealthStatus classifies a mailbox's deliverability health.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// ReputationFactors are the aggregated counters a reputation score is
// derived from. Event ingestion (bounces, opens, clicks) is external; this
// core only consumes the totals.
type ReputationFactors struct {
	SentCount          int `json:"sent_count" db:"sent_count"`
	DeliveredCount     int `json:"delivered_count" db:"delivered_count"`
	BouncedCount       int `json:"bounced_count" db:"bounced_count"`
	OpenedCount        int `json:"opened_count" db:"opened_count"`
	ClickedCount       int `json:"clicked_count" db:"clicked_count"`
	RepliedCount       int `json:"replied_count" db:"replied_count"`
	SpamReportCount    int `json:"spam_report_count" db:"spam_report_count"`
	UnsubscribeCount   int `json:"unsubscribe_count" db:"unsubscribe_count"`
	DaysSinceFirstSend int `json:"days_since_first_send" db:"days_since_first_send"`
}

// ReputationScore is the derived 0-100 measure plus its components. It is
// recomputed on demand from factors, never stored as source of truth.
type ReputationScore struct {
	Overall         float64      `json:"overall"`
	Deliverability  float64      `json:"deliverability"`
	Engagement      float64      `json:"engagement"`
	ComplaintSafety float64      `json:"complaint_safety"`
	Confidence      float64      `json:"confidence"`
	Health          HealthStatus `json:"health"`
}
