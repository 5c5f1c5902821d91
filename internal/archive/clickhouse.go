package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"FirewallAlertPump/internal/config"
	"FirewallAlertPump/internal/models"
)

// Client — необязательный архив классифицированных строк в ClickHouse.
// Конвейер полностью работоспособен и без него.
type Client struct {
	conn  clickhouse.Conn
	table string
	lg    *zap.Logger
}

// New создаёт подключение к ClickHouse. Protocol: "native" или "http".
func New(cfg config.ArchiveConfig, lg *zap.Logger) (*Client, error) {
	protocol := clickhouse.Native
	if cfg.Protocol == "http" {
		protocol = clickhouse.HTTP
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Address},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		Protocol:    protocol,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	return &Client{conn: conn, table: cfg.Table, lg: lg}, nil
}

// InsertRows пишет пачку классифицированных строк одним batch-инсертом.
func (c *Client) InsertRows(ctx context.Context, rows []models.ClassifiedRow) error {
	batch, err := c.conn.PrepareBatch(ctx,
		"INSERT INTO "+c.table+" ("+
			"BatchID, EventTime, SyslogID, Severity, SourceIP, SourcePort, "+
			"DestinationIP, DestinationPort, Duration, Bytes, Protocol, Action, "+
			"Description, IsAttack, CRLevel"+
			") VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)")
	if err != nil {
		c.lg.Error("prepare batch", zap.Error(err))
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		err := batch.Append(
			int32(r.BatchID),
			r.Datetime,
			r.SyslogID,
			int8(r.Severity),
			r.SourceIP,
			int32(r.SourcePort),
			r.DestinationIP,
			int32(r.DestinationPort),
			r.Duration,
			r.Bytes,
			int8(r.Protocol),
			int8(r.Action),
			r.Description,
			uint8(r.IsAttack),
			int8(r.CRLevel),
		)
		if err != nil {
			c.lg.Error("append row", zap.Error(err))
			return fmt.Errorf("append row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
