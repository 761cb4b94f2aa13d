package chread

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the ClickHouse scan_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil && strings.Contains(dsn, "secure=true") {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow represents a single row from the scan_events table.
type EventRow struct {
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Trigger      string    `json:"trigger"`
	URL          string    `json:"url"`
	Domain       string    `json:"domain"`
	Source       string    `json:"source"`
	RiskLevel    string    `json:"risk_level"`
	SafetyScore  int32     `json:"safety_score"`
	Probability  float32   `json:"probability"`
	Explanations []string  `json:"explanations"`
	Action       string    `json:"action"`
	TabID        int64     `json:"tab_id"`
	LatencyMs    float32   `json:"latency_ms"`
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	Trigger   *string
	RiskLevel *string
	Domain    *string
	Action    *string
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

// whereClause builds the filter expression and its named arguments.
func (p ListEventsParams) whereClause() (string, []any) {
	conditions := []string{"1 = 1"}
	var args []any

	if p.Trigger != nil {
		conditions = append(conditions, "trigger = @trigger")
		args = append(args, clickhouse.Named("trigger", *p.Trigger))
	}
	if p.RiskLevel != nil {
		conditions = append(conditions, "risk_level = @risk_level")
		args = append(args, clickhouse.Named("risk_level", *p.RiskLevel))
	}
	if p.Domain != nil {
		conditions = append(conditions, "domain = @domain")
		args = append(args, clickhouse.Named("domain", *p.Domain))
	}
	if p.Action != nil {
		conditions = append(conditions, "action = @action")
		args = append(args, clickhouse.Named("action", *p.Action))
	}
	if p.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *p.StartTime))
	}
	if p.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *p.EndTime))
	}

	return strings.Join(conditions, " AND "), args
}

const eventColumns = "request_id, timestamp, trigger, url, domain, source, " +
	"risk_level, safety_score, probability, explanations, action, tab_id, latency_ms"

// ListEvents returns paginated, filtered scan events (newest first) and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	where, args := params.whereClause()
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM scan_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM scan_events WHERE %s ORDER BY timestamp DESC LIMIT @limit OFFSET @offset",
		eventColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []EventRow{}
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.RequestID, &e.Timestamp, &e.Trigger, &e.URL, &e.Domain, &e.Source,
			&e.RiskLevel, &e.SafetyScore, &e.Probability, &e.Explanations,
			&e.Action, &e.TabID, &e.LatencyMs,
		); err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}

// DomainCount holds a registered domain and how often it was flagged.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// Summary holds aggregate counts over a time range.
type Summary struct {
	TotalScans int           `json:"total_scans"`
	Phishing   int           `json:"phishing"`
	Suspicious int           `json:"suspicious"`
	Safe       int           `json:"safe"`
	Unknown    int           `json:"unknown"`
	Blocked    int           `json:"blocked"`
	Reports    int           `json:"reports"`
	P95Latency float64       `json:"p95_latency_ms"`
	TopDomains []DomainCount `json:"top_domains"`
}

// summaryColumns are the aggregates scanned by GetSummary, in order. User
// reports carry no verdict, so they are counted on their own and kept out of
// the scan totals.
var summaryColumns = []string{
	"countIf(trigger != 'report')",
	"countIf(risk_level = 'phishing' AND trigger != 'report')",
	"countIf(risk_level = 'suspicious' AND trigger != 'report')",
	"countIf(risk_level = 'safe' AND trigger != 'report')",
	"countIf(risk_level = '' AND trigger != 'report')",
	"countIf(action = 'blocked' AND trigger != 'report')",
	"countIf(trigger = 'report')",
	"quantileIf(0.95)(latency_ms, trigger != 'report')",
}

var summaryCountsQuery = "SELECT " + strings.Join(summaryColumns, ", ") +
	" FROM scan_events WHERE timestamp >= @range_start"

// GetSummary aggregates the scan events of the last days days.
func (r *Reader) GetSummary(ctx context.Context, days int) (*Summary, error) {
	rangeStart := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	args := []any{clickhouse.Named("range_start", rangeStart)}

	var total, phishing, suspicious, safe, unknown, blocked, reports uint64
	var p95 float64
	err := r.conn.QueryRow(ctx, summaryCountsQuery, args...).
		Scan(&total, &phishing, &suspicious, &safe, &unknown, &blocked, &reports, &p95)
	if err != nil {
		return nil, fmt.Errorf("GetSummary counts: %w", err)
	}

	result := &Summary{
		TotalScans: int(total),
		Phishing:   int(phishing),
		Suspicious: int(suspicious),
		Safe:       int(safe),
		Unknown:    int(unknown),
		Blocked:    int(blocked),
		Reports:    int(reports),
		P95Latency: safeFloat(p95),
		TopDomains: []DomainCount{},
	}

	rows, err := r.conn.Query(ctx,
		"SELECT domain, count() AS count FROM scan_events "+
			"WHERE risk_level = 'phishing' AND domain != '' AND timestamp >= @range_start "+
			"GROUP BY domain ORDER BY count DESC LIMIT 10",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetSummary top_domains: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var d string
		var count uint64
		if err := rows.Scan(&d, &count); err != nil {
			return nil, fmt.Errorf("GetSummary top_domains scan: %w", err)
		}
		result.TopDomains = append(result.TopDomains, DomainCount{Domain: d, Count: int(count)})
	}

	return result, rows.Err()
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
