package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"BotnetSpectra/internal/config"
	"BotnetSpectra/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS classified_flows (
    StartTime       DateTime64(6),
    EndTime         DateTime64(6),
    SrcIP           String,
    SrcPort         UInt16,
    DstIP           String,
    DstPort         UInt16,
    Protocol        UInt16,
    Packets         Int64,
    OutgoingPackets Int64,
    Octets          Int64,
    PayloadOctets   Int64,
    Class           String,
    Abnormal        UInt8
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(StartTime)
ORDER BY (Class, StartTime);
`

// inserter sends one batch of flows.
type inserter interface {
	insert(ctx context.Context, recs []model.ClassifiedFlow) error
	close() error
}

// ClickHouseWriter buffers classified flows and inserts them into the
// classified_flows table in batches. A batch is sent when it is full, when
// the flush interval elapses and on Close.
type ClickHouseWriter struct {
	ins       inserter
	batchSize int

	mu      sync.Mutex
	pending []model.ClassifiedFlow
	written int

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewClickHouseWriter connects to ClickHouse and ensures the table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured table exists.")

	interval, err := config.ParseDuration("sinks.clickhouse.flush_interval", cfg.FlushInterval, 5*time.Second)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return newClickHouseWriter(&chInserter{conn: conn}, cfg.BatchSize, interval), nil
}

func newClickHouseWriter(ins inserter, batchSize int, interval time.Duration) *ClickHouseWriter {
	if batchSize <= 0 {
		batchSize = 1000
	}
	w := &ClickHouseWriter{
		ins:       ins,
		batchSize: batchSize,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go w.flushLoop(interval)
	return w
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Write implements model.Writer.
func (w *ClickHouseWriter) Write(rec model.ClassifiedFlow) error {
	w.mu.Lock()
	w.pending = append(w.pending, rec)
	full := len(w.pending) >= w.batchSize
	w.mu.Unlock()

	if full {
		return w.Flush()
	}
	return nil
}

// Flush sends the buffered flows.
func (w *ClickHouseWriter) Flush() error {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := w.ins.insert(context.Background(), batch); err != nil {
		return fmt.Errorf("failed to write %d flows to ClickHouse: %w", len(batch), err)
	}

	w.mu.Lock()
	w.written += len(batch)
	w.mu.Unlock()
	log.Debugf("Wrote %d flows to ClickHouse", len(batch))
	return nil
}

// Written returns the number of flows inserted so far.
func (w *ClickHouseWriter) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *ClickHouseWriter) flushLoop(interval time.Duration) {
	defer close(w.done)
	if interval <= 0 {
		<-w.stop
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				log.WithError(err).Warn("Periodic ClickHouse flush failed")
			}
		}
	}
}

// Close stops the flush loop, sends what is left and closes the connection.
func (w *ClickHouseWriter) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		<-w.done
		err = w.Flush()
		if cerr := w.ins.close(); err == nil {
			err = cerr
		}
		log.Printf("ClickHouse writer closed after %d flows.", w.Written())
	})
	return err
}

type chInserter struct {
	conn driver.Conn
}

func (c *chInserter) insert(ctx context.Context, recs []model.ClassifiedFlow) error {
	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO classified_flows")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, rec := range recs {
		f := rec.Flow
		var abnormal uint8
		if rec.Abnormal {
			abnormal = 1
		}
		err = batch.Append(
			f.Start,
			f.End,
			f.Source.String(),
			f.SrcPort,
			f.Destination.String(),
			f.DstPort,
			uint16(f.Protocol),
			f.Packets,
			f.OutgoingPackets,
			f.Octets,
			f.PayloadOctets,
			rec.Class,
			abnormal,
		)
		if err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append flow to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func (c *chInserter) close() error {
	return c.conn.Close()
}
