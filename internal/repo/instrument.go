// Package repo — query instrumentation.
//
// This file provides an explicit decorator over GORM's logger interface that
// emits structured query logs (zerolog) and Prometheus metrics for every SQL
// statement. It is composed into the *gorm.DB at construction time via
// OpenSQLite, replacing the ad-hoc approach of patching a shared client.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// dbQueries counts executed statements by operation verb and outcome.
	dbQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_queries_total",
			Help: "Total number of database statements executed.",
		},
		[]string{"operation", "outcome"},
	)

	// dbLat records statement duration in seconds by operation verb.
	dbLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database statements in seconds.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(dbQueries, dbLat)
}

// QueryLogger is a gorm logger.Interface implementation that decorates every
// query with zerolog output and Prometheus counters. Slow statements (above
// SlowThreshold) and errors are logged at warn/error level; everything else
// at debug level so production logs stay quiet.
type QueryLogger struct {
	Log           zerolog.Logger
	SlowThreshold time.Duration
	level         gormlogger.LogLevel
}

// NewQueryLogger constructs a QueryLogger writing through lg.
func NewQueryLogger(lg zerolog.Logger) *QueryLogger {
	return &QueryLogger{
		Log:           lg,
		SlowThreshold: 200 * time.Millisecond,
		level:         gormlogger.Warn,
	}
}

// LogMode returns a copy of the logger at the given GORM log level.
func (l *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

// Info implements logger.Interface.
func (l *QueryLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.Log.Info().Msgf(msg, args...)
	}
}

// Warn implements logger.Interface.
func (l *QueryLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.Log.Warn().Msgf(msg, args...)
	}
}

// Error implements logger.Interface.
func (l *QueryLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.Log.Error().Msgf(msg, args...)
	}
}

// Trace implements logger.Interface. It records metrics for every statement
// and logs according to outcome:
//   - error  → error log with SQL
//   - slow   → warn log with SQL and threshold
//   - normal → debug log
func (l *QueryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	op := sqlOperation(sql)

	outcome := "ok"
	if err != nil && err != gormlogger.ErrRecordNotFound {
		outcome = "error"
	}
	dbQueries.WithLabelValues(op, outcome).Inc()
	dbLat.WithLabelValues(op).Observe(elapsed.Seconds())

	switch {
	case err != nil && err != gormlogger.ErrRecordNotFound && l.level >= gormlogger.Error:
		l.Log.Error().
			Err(err).
			Str("sql", sql).
			Int64("rows", rows).
			Dur("elapsed", elapsed).
			Msg("query failed")
	case l.SlowThreshold > 0 && elapsed >= l.SlowThreshold && l.level >= gormlogger.Warn:
		l.Log.Warn().
			Str("sql", sql).
			Int64("rows", rows).
			Dur("elapsed", elapsed).
			Dur("threshold", l.SlowThreshold).
			Msg("slow query")
	default:
		l.Log.Debug().
			Str("sql", sql).
			Int64("rows", rows).
			Dur("elapsed", elapsed).
			Msg("query")
	}
}

// sqlOperation extracts the leading verb of a statement ("select", "insert",
// …) for use as a bounded metric label.
func sqlOperation(sql string) string {
	s := strings.TrimSpace(sql)
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	s = strings.ToLower(s)
	switch s {
	case "select", "insert", "update", "delete", "pragma", "create", "alter", "drop":
		return s
	default:
		return "other"
	}
}
