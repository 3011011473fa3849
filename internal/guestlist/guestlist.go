package guestlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"

	"github.com/guestlens/guestlens/internal/config"
)

// Lookup reads guest display names from the event platform's RSVP database.
// Access is strictly read-only; the matcher never writes to the platform.
type Lookup struct {
	db    *sql.DB
	table string
}

// Open connects to the RSVP database and verifies the connection.
func Open(cfg *config.GuestlistConfig) (*Lookup, error) {
	if cfg.DSN == "" {
		return nil, errors.New("guest list DSN is required")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open guest list database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping guest list database: %w", err)
	}

	return &Lookup{db: db, table: cfg.Table}, nil
}

// Close closes the connection pool.
func (l *Lookup) Close() error {
	if l.db != nil {
		if err := l.db.Close(); err != nil {
			return fmt.Errorf("closing guest list connection: %w", err)
		}
	}
	return nil
}

// DisplayNames maps guest folder keys to RSVP names. Keys without a matching
// RSVP entry are simply absent from the result; matching is done on
// normalized names so "jan-novak" finds "Jan Novák".
func (l *Lookup) DisplayNames(ctx context.Context, keys []string) (map[string]string, error) {
	byNormalized, err := l.loadNames(ctx)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	for _, key := range keys {
		if name, ok := byNormalized[NormalizeName(key)]; ok {
			names[key] = name
		}
	}
	log.WithFields(log.Fields{"guests": len(keys), "resolved": len(names)}).
		Debug("resolved guest display names")
	return names, nil
}

// loadNames reads every RSVP name once and indexes it by normalized form.
// Guest tables are small, so a full read beats per-key queries.
func (l *Lookup) loadNames(ctx context.Context) (map[string]string, error) {
	// The table name comes from trusted configuration, not user input.
	query := fmt.Sprintf("SELECT name FROM `%s`", l.table)
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query guest list: %w", err)
	}
	defer rows.Close()

	byNormalized := make(map[string]string)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan guest name: %w", err)
		}
		normalized := NormalizeName(name)
		if _, dup := byNormalized[normalized]; dup {
			log.WithField("name", name).Warn("duplicate normalized guest name in RSVP table")
			continue
		}
		byNormalized[normalized] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate guest list: %w", err)
	}
	return byNormalized, nil
}
