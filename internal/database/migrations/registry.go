// Package migrations provides database migration management for mobasher.
package migrations

import (
	"gorm.io/gorm"

	"github.com/mobasher/mobasher/internal/models"
)

// AllMigrations returns all registered migrations in order.
//   - 001: Schema creation using GORM AutoMigrate
//   - 002: TimescaleDB hypertables for time-partitioned tables
//   - 003: pgvector extension and ivfflat index for segment embeddings
//   - 004: Full-text search index on transcripts
//   - 005: Timescale compression and retention policies
//
// Migrations 002-005 issue postgres-only DDL and are no-ops on sqlite,
// which only ever backs tests.
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002Hypertables(),
		migration003Pgvector(),
		migration004TranscriptSearch(),
		migration005TimescalePolicies(),
	}
}

func isPostgres(tx *gorm.DB) bool {
	return tx.Dialector.Name() == "postgres"
}

// migration001Schema creates all database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create all database tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Channel{},
				&models.Recording{},
				&models.Segment{},
				&models.Transcript{},
				&models.SegmentEmbedding{},
				&models.VisualEvent{},
				&models.Entity{},
				&models.Alert{},
				&models.SystemMetric{},
			)
		},
		Down: func(tx *gorm.DB) error {
			tables := []string{
				"system_metrics",
				"alerts",
				"entities",
				"visual_events",
				"segment_embeddings",
				"transcripts",
				"segments",
				"recordings",
				"channels",
			}
			for _, table := range tables {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

// migration002Hypertables converts the time-partitioned tables into
// TimescaleDB hypertables. Existing rows migrate in place.
func migration002Hypertables() Migration {
	return Migration{
		Version:     "002",
		Description: "Create TimescaleDB hypertables",
		Up: func(tx *gorm.DB) error {
			if !isPostgres(tx) {
				return nil
			}
			if err := tx.Exec(`CREATE EXTENSION IF NOT EXISTS timescaledb`).Error; err != nil {
				return err
			}
			stmts := []string{
				`SELECT create_hypertable('recordings', 'started_at', if_not_exists => TRUE, migrate_data => TRUE)`,
				`SELECT create_hypertable('segments', 'started_at', if_not_exists => TRUE, migrate_data => TRUE)`,
				`SELECT create_hypertable('visual_events', 'created_at', if_not_exists => TRUE, migrate_data => TRUE)`,
				`SELECT create_hypertable('system_metrics', 'timestamp', if_not_exists => TRUE, migrate_data => TRUE)`,
			}
			for _, stmt := range stmts {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Down: func(tx *gorm.DB) error {
			// Hypertables revert to plain tables only by drop/recreate;
			// rolling back 001 covers that.
			return nil
		},
	}
}

// migration003Pgvector enables pgvector and builds the ANN index used by
// semantic search over segment embeddings.
func migration003Pgvector() Migration {
	return Migration{
		Version:     "003",
		Description: "Enable pgvector and index segment embeddings",
		Up: func(tx *gorm.DB) error {
			if !isPostgres(tx) {
				return nil
			}
			if err := tx.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error; err != nil {
				return err
			}
			return tx.Exec(
				`CREATE INDEX IF NOT EXISTS idx_embeddings_vector
				 ON segment_embeddings USING ivfflat (vector vector_l2_ops) WITH (lists = 100)`,
			).Error
		},
		Down: func(tx *gorm.DB) error {
			if !isPostgres(tx) {
				return nil
			}
			return tx.Exec(`DROP INDEX IF EXISTS idx_embeddings_vector`).Error
		},
	}
}

// migration004TranscriptSearch adds a GIN index for full-text search over
// transcript text.
func migration004TranscriptSearch() Migration {
	return Migration{
		Version:     "004",
		Description: "Full-text search index on transcripts",
		Up: func(tx *gorm.DB) error {
			if !isPostgres(tx) {
				return nil
			}
			return tx.Exec(
				`CREATE INDEX IF NOT EXISTS idx_transcripts_text_search
				 ON transcripts USING gin (to_tsvector('simple', text))`,
			).Error
		},
		Down: func(tx *gorm.DB) error {
			if !isPostgres(tx) {
				return nil
			}
			return tx.Exec(`DROP INDEX IF EXISTS idx_transcripts_text_search`).Error
		},
	}
}

// migration005TimescalePolicies adds compression on cold segment chunks and
// an automatic drop policy for system metrics. Row-level retention for the
// analysis tables stays in the retention runner, where dry-run applies.
func migration005TimescalePolicies() Migration {
	return Migration{
		Version:     "005",
		Description: "Timescale compression and metric retention policies",
		Up: func(tx *gorm.DB) error {
			if !isPostgres(tx) {
				return nil
			}
			stmts := []string{
				`ALTER TABLE segments SET (timescaledb.compress, timescaledb.compress_segmentby = 'channel_id')`,
				`SELECT add_compression_policy('segments', INTERVAL '7 days', if_not_exists => TRUE)`,
				`SELECT add_retention_policy('system_metrics', INTERVAL '90 days', if_not_exists => TRUE)`,
			}
			for _, stmt := range stmts {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Down: func(tx *gorm.DB) error {
			if !isPostgres(tx) {
				return nil
			}
			stmts := []string{
				`SELECT remove_retention_policy('system_metrics', if_exists => TRUE)`,
				`SELECT remove_compression_policy('segments', if_exists => TRUE)`,
			}
			for _, stmt := range stmts {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}
