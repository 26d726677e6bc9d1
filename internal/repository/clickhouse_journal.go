package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
	pkgch "SignalEngine/pkg/clickhouse"
	applogger "SignalEngine/pkg/logger"
)

const (
	signalsTable   = "signals"
	positionsTable = "positions"
	insertChunk    = 500
)

// JournalSchema returns the DDL for the journal tables in db.
func JournalSchema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            id String,
            created_at DateTime64(3),
            symbol LowCardinality(String),
            direction LowCardinality(String),
            strength LowCardinality(String),
            confidence Float64,
            entry Float64,
            stop_loss Float64,
            tp1 Float64,
            tp2 Float64,
            tp3 Float64,
            risk_reward Float64,
            regime LowCardinality(String),
            status LowCardinality(String),
            payload String
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, created_at, id)`, db, signalsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            signal_id String,
            symbol LowCardinality(String),
            direction LowCardinality(String),
            status LowCardinality(String),
            entry Float64,
            quantity Float64,
            realized_pnl Float64,
            opened_at DateTime64(3),
            closed_at DateTime64(3),
            payload String
        ) ENGINE = MergeTree
        ORDER BY (symbol, closed_at)`, db, positionsTable),
	}
}

// ClickHouseJournal stores accepted signals and closed positions.
type ClickHouseJournal struct {
	client *pkgch.Client
	db     *sql.DB
	schema string
	l      *applogger.Logger
}

func NewClickHouseJournal(ch *pkgch.Client, database string, l *applogger.Logger) *ClickHouseJournal {
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHouseJournal{client: ch, db: ch.DB(), schema: database, l: l.Component("journal")}
}

func (j *ClickHouseJournal) Init(ctx context.Context) error {
	return j.client.InitSchema(ctx, JournalSchema(j.schema))
}

func (j *ClickHouseJournal) StoreSignals(ctx context.Context, signals []*models.Signal) error {
	for start := 0; start < len(signals); start += insertChunk {
		end := start + insertChunk
		if end > len(signals) {
			end = len(signals)
		}
		q, args, err := signalInsert(j.schema, signals[start:end])
		if err != nil {
			return err
		}
		if q == "" {
			continue
		}
		if _, err := j.db.ExecContext(ctx, q, args...); err != nil {
			j.l.Error("clickhouse insert signals", applogger.Int("rows", end-start), applogger.Error(err))
			return fmt.Errorf("insert signals: %w", err)
		}
	}
	return nil
}

// signalInsert builds one multi-row INSERT. Nil signals are skipped.
func signalInsert(schema string, signals []*models.Signal) (string, []interface{}, error) {
	values := make([]string, 0, len(signals))
	args := make([]interface{}, 0, len(signals)*15)
	for _, s := range signals {
		if s == nil {
			continue
		}
		payload, err := json.Marshal(s)
		if err != nil {
			return "", nil, fmt.Errorf("marshal signal %s: %w", s.ID, err)
		}
		tp1, tp2, tp3 := s.TakeProfit.Prices()
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			s.ID, s.CreatedAt, s.Symbol, string(s.Direction), string(s.Strength),
			s.Confidence, s.EntryPrice, s.StopLoss, tp1, tp2, tp3, s.RiskReward,
			string(s.Context.Regime), string(s.Status), string(payload),
		)
	}
	if len(values) == 0 {
		return "", nil, nil
	}
	q := fmt.Sprintf(`INSERT INTO %s.%s (id, created_at, symbol, direction, strength, confidence, entry, stop_loss, tp1, tp2, tp3, risk_reward, regime, status, payload) VALUES %s`,
		schema, signalsTable, strings.Join(values, ","))
	return q, args, nil
}

func (j *ClickHouseJournal) StorePosition(ctx context.Context, p *models.Position) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal position %s: %w", p.Symbol, err)
	}
	q := fmt.Sprintf(`INSERT INTO %s.%s (signal_id, symbol, direction, status, entry, quantity, realized_pnl, opened_at, closed_at, payload) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.schema, positionsTable)
	if _, err := j.db.ExecContext(ctx, q,
		p.SignalID, p.Symbol, string(p.Direction), string(p.Status),
		p.EntryPrice, p.OriginalQuantity, p.RealizedPnL, p.OpenedAt, p.ClosedAt, string(payload),
	); err != nil {
		j.l.Error("clickhouse insert position", applogger.String("symbol", p.Symbol), applogger.Error(err))
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// QuerySignals returns signals newest first. An empty symbol matches all.
func (j *ClickHouseJournal) QuerySignals(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Signal, error) {
	q := fmt.Sprintf(`SELECT payload FROM %s.%s FINAL
        WHERE (? = '' OR symbol = ?) AND created_at >= ? AND created_at <= ?
        ORDER BY created_at DESC LIMIT ?`, j.schema, signalsTable)
	rows, err := j.db.QueryContext(ctx, q, symbol, symbol, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Signal, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		var s models.Signal
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			j.l.Warn("skip malformed signal row", applogger.Error(err))
			continue
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (j *ClickHouseJournal) Health(ctx context.Context) error { return j.client.Health(ctx) }

// Close is a no-op; the client is owned by the DI container.
func (j *ClickHouseJournal) Close() error { return nil }

var _ domrepo.SignalJournal = (*ClickHouseJournal)(nil)
