package samples

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang/glog"

	"github.com/OpenTraceLab/bitfuzz/pkg/fault"
)

var drvName = "mysql"

// Schema creates the table the archive reads and writes.
const Schema = `CREATE TABLE IF NOT EXISTS samples (
	device VARCHAR(64) NOT NULL,
	tile VARCHAR(64) NOT NULL,
	bel VARCHAR(32) NOT NULL,
	attr VARCHAR(64) NOT NULL,
	val VARCHAR(64) NOT NULL,
	bits TEXT NOT NULL,
	PRIMARY KEY (device, tile, bel, attr, val)
)`

// Archive keeps samples of past runs in a MySQL database, so that a
// classification can be repeated without invoking the toolchain again.
type Archive struct {
	db *sql.DB
}

// OpenArchive connects to the database named by dsn, e.g.
// "user:pwd@tcp(localhost:3306)/bitfuzz".
func OpenArchive(dsn string) (*Archive, error) {
	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("samples: could not open archive: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("samples: could not ping archive: %w", err)
	}

	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// CreateSchema creates the samples table if it does not exist yet.
func (a *Archive) CreateSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("samples: could not create schema: %w", err)
	}
	return nil
}

// Save replaces the archived samples of device with the content of s.
func (a *Archive) Save(ctx context.Context, device string, s *Store) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("samples: could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM samples WHERE device = ?", device); err != nil {
		return fmt.Errorf("samples: could not clear %s: %w", device, err)
	}

	s.mu.Lock()
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	SortKeys(keys)
	rows := make([][]any, len(keys))
	for i, k := range keys {
		rows[i] = []any{device, k.Tile, k.Bel, k.Attr, k.Val, formatBits(s.entries[k].diff)}
	}
	s.mu.Unlock()

	for _, row := range rows {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO samples (device, tile, bel, attr, val, bits) VALUES (?, ?, ?, ?, ?, ?)",
			row...,
		)
		if err != nil {
			return fmt.Errorf("samples: could not insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("samples: could not commit %s: %w", device, err)
	}
	glog.Infof("archived %d samples of %s", len(rows), device)
	return nil
}

// Load records every archived sample of device into s and returns how many
// were read.
func (a *Archive) Load(ctx context.Context, device string, s *Store) (int, error) {
	rows, err := a.db.QueryContext(ctx,
		"SELECT tile, bel, attr, val, bits FROM samples WHERE device = ? ORDER BY tile, bel, attr, val",
		device,
	)
	if err != nil {
		return 0, fmt.Errorf("samples: could not query %s: %w", device, err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			k    Key
			bits string
		)
		if err := rows.Scan(&k.Tile, &k.Bel, &k.Attr, &k.Val, &bits); err != nil {
			return n, fmt.Errorf("samples: could not scan sample: %w", err)
		}
		d, err := parseBits(bits)
		if err != nil {
			return n, fmt.Errorf("samples: %s: %w", k, err)
		}
		if ft := fault.Catch(func() { s.Record(k, d) }); ft != nil {
			return n, fmt.Errorf("samples: %w", ft)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("samples: could not read samples of %s: %w", device, err)
	}
	return n, nil
}

// Devices lists the devices that have archived samples.
func (a *Archive) Devices(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, "SELECT DISTINCT device FROM samples ORDER BY device")
	if err != nil {
		return nil, fmt.Errorf("samples: could not query devices: %w", err)
	}
	defer rows.Close()

	var devs []string
	for rows.Next() {
		var dev string
		if err := rows.Scan(&dev); err != nil {
			return nil, fmt.Errorf("samples: could not scan device: %w", err)
		}
		devs = append(devs, dev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("samples: could not read devices: %w", err)
	}
	return devs, nil
}
