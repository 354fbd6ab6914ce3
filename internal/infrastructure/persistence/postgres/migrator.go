// internal/infrastructure/persistence/postgres/migrator.go
package postgres

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bsc-trading-assistant-bot/pkg/logger"

	"github.com/jmoiron/sqlx"
)

// Migrator управляет миграциями базы данных
type Migrator struct {
	db         *sqlx.DB
	migrations map[int]*Migration
}

// Migration представляет одну миграцию
type Migration struct {
	ID          int
	Name        string
	Description string
	SQL         string
	Checksum    string
}

// MigrationRecord - запись о примененной миграции
type MigrationRecord struct {
	ID        int       `db:"id"`
	Name      string    `db:"name"`
	AppliedAt time.Time `db:"applied_at"`
	Checksum  string    `db:"checksum"`
}

// NewMigrator создает новый мигратор
func NewMigrator(db *sqlx.DB) *Migrator {
	return &Migrator{
		db:         db,
		migrations: make(map[int]*Migration),
	}
}

// Init инициализирует таблицу миграций
func (m *Migrator) Init() error {
	query := `
	CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		sql_content TEXT NOT NULL,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		checksum VARCHAR(64) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_migrations_applied_at ON migrations(applied_at);
	`

	_, err := m.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	logger.Info("✅ Migrations table initialized")
	return nil
}

// LoadMigrations загружает миграции из директории
func (m *Migrator) LoadMigrations(migrationsDir string) error {
	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", migrationsDir)
	}

	logger.Info("📂 Loading migrations from: %s", migrationsDir)

	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	// Фильтруем и сортируем SQL файлы
	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	// Имена начинаются с номера, сортировка по имени дает порядок применения
	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		if err := m.loadMigration(migrationsDir, filename); err != nil {
			return fmt.Errorf("failed to load migration %s: %w", filename, err)
		}
	}

	logger.Info("✅ Loaded %d migrations", len(m.migrations))
	return nil
}

// loadMigration загружает одну миграцию из файла
func (m *Migrator) loadMigration(dir, filename string) error {
	// Формат имени: 001_create_users.sql
	id, name, err := parseMigrationFilename(filename)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, filename)
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	migration := &Migration{
		ID:          id,
		Name:        name,
		Description: extractDescription(string(content)),
		SQL:         string(content),
		Checksum:    calculateChecksum(string(content)),
	}

	m.migrations[id] = migration
	logger.Debug("📄 Loaded migration: %s (%s)", filename, migration.Description)
	return nil
}

// Migrate применяет все непройденные миграции
func (m *Migrator) Migrate() error {
	logger.Info("🚀 Starting database migrations...")

	if err := m.Init(); err != nil {
		return fmt.Errorf("failed to init migrations table: %w", err)
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	// Применяем миграции по порядку
	var appliedCount int
	for id := 1; id <= len(m.migrations); id++ {
		migration, exists := m.migrations[id]
		if !exists {
			logger.Warn("⚠️ Migration ID %d not found in loaded migrations", id)
			continue
		}

		if record, ok := applied[id]; ok {
			// Примененная миграция не должна была измениться на диске
			if record.Checksum != migration.Checksum {
				logger.Warn("⚠️ Checksum mismatch for migration %d: %s", id, migration.Name)
				logger.Warn("   Expected: %s", migration.Checksum)
				logger.Warn("   Got:      %s", record.Checksum)
				return fmt.Errorf("checksum mismatch for migration %d: %s", id, migration.Name)
			}
			logger.Debug("✅ Migration already applied: %s", migration.Name)
			continue
		}

		if err := m.applyMigration(migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %s: %w", id, migration.Name, err)
		}

		appliedCount++
	}

	if appliedCount > 0 {
		logger.Info("✅ Applied %d new migrations", appliedCount)
	} else {
		logger.Info("✅ Database is up to date")
	}

	return nil
}

// Validate проверяет целостность миграций
func (m *Migrator) Validate() error {
	logger.Info("🔍 Validating migrations...")

	if len(m.migrations) == 0 {
		return fmt.Errorf("no migrations loaded")
	}

	// Проверяем, что нет пропущенных ID
	for id := range m.migrations {
		if id > 1 {
			if _, exists := m.migrations[id-1]; !exists {
				return fmt.Errorf("missing migration with ID %d", id-1)
			}
		}
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		// При первом запуске таблицы migrations еще нет
		logger.Debug("Skipping validation check - migrations table may not exist yet")
		return nil
	}

	if len(applied) == 0 {
		logger.Debug("No applied migrations to validate")
		return nil
	}

	var problems []string
	for id, record := range applied {
		if migration, exists := m.migrations[id]; exists {
			if record.Checksum != migration.Checksum {
				problems = append(problems,
					fmt.Sprintf("Migration %d (%s): checksum mismatch", id, migration.Name))
			}
		} else {
			problems = append(problems,
				fmt.Sprintf("Migration %d applied but not found in files", id))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("migration validation failed:\n  %s", strings.Join(problems, "\n  "))
	}

	logger.Info("✅ All migrations validated successfully")
	return nil
}

// Вспомогательные методы

func (m *Migrator) getAppliedMigrations() (map[int]*MigrationRecord, error) {
	query := `
	SELECT id, name, applied_at, checksum
	FROM migrations
	ORDER BY id
	`

	rows, err := m.db.Query(query)
	if err != nil {
		// Таблица migrations не существует - это нормально для первого запуска
		if strings.Contains(err.Error(), "does not exist") {
			logger.Debug("Migrations table does not exist, treating as empty")
			return make(map[int]*MigrationRecord), nil
		}
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]*MigrationRecord)
	for rows.Next() {
		var record MigrationRecord
		var appliedAt sql.NullTime
		err := rows.Scan(&record.ID, &record.Name, &appliedAt, &record.Checksum)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		if appliedAt.Valid {
			record.AppliedAt = appliedAt.Time
		}
		applied[record.ID] = &record
	}

	return applied, nil
}

func (m *Migrator) applyMigration(migration *Migration) error {
	logger.Info("📤 Applying migration: %s", migration.Name)

	tx, err := m.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	query := `
	INSERT INTO migrations (id, name, description, sql_content, checksum)
	VALUES ($1, $2, $3, $4, $5)
	`
	_, err = tx.Exec(query,
		migration.ID,
		migration.Name,
		migration.Description,
		migration.SQL,
		migration.Checksum,
	)
	if err != nil {
		return fmt.Errorf("failed to save migration record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	logger.Info("✅ Applied migration: %s", migration.Name)
	return nil
}

// Вспомогательные функции

func parseMigrationFilename(filename string) (int, string, error) {
	base := strings.TrimSuffix(filename, ".sql")

	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("invalid migration filename format: %s (expected: 001_name.sql)", filename)
	}

	var id int
	if _, err := fmt.Sscanf(parts[0], "%d", &id); err != nil {
		return 0, "", fmt.Errorf("invalid migration ID in filename: %s", filename)
	}

	name := strings.ReplaceAll(parts[1], "_", " ")

	return id, name, nil
}

func extractDescription(sql string) string {
	lines := strings.Split(sql, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-- Description:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "-- Description:"))
		}
	}
	return "No description"
}

func calculateChecksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
