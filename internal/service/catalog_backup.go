package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"dailyalchemy/internal/database"
	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
	"dailyalchemy/internal/normalize"
	"dailyalchemy/internal/repository"
)

// BackupVersion is written into every export.
const BackupVersion = "1"

// CatalogBackup is the file layout of a catalog export.
type CatalogBackup struct {
	Version      string              `yaml:"version"`
	ExportedAt   time.Time           `yaml:"exported_at"`
	DatabaseType string              `yaml:"database_type"`
	Combinations []CombinationBackup `yaml:"combinations"`
}

// CombinationBackup represents a catalog record for backup
type CombinationBackup struct {
	Key             string    `yaml:"key"`
	ElementA        string    `yaml:"a"`
	ElementB        string    `yaml:"b"`
	ResultName      string    `yaml:"result"`
	ResultEmoji     string    `yaml:"emoji"`
	OracleGenerated bool      `yaml:"oracle_generated,omitempty"`
	AdminDefined    bool      `yaml:"admin_defined,omitempty"`
	Reserved        bool      `yaml:"reserved,omitempty"`
	Discoverer      string    `yaml:"discoverer,omitempty"`
	UseCount        int64     `yaml:"use_count"`
	CreatedAt       time.Time `yaml:"created_at"`
}

// ImportResult summarises a catalog import.
type ImportResult struct {
	Created   int                   `json:"created"`
	Skipped   int                   `json:"skipped"`
	Conflicts []models.PathConflict `json:"conflicts,omitempty"`
}

// CatalogBackupService exports and imports the catalog as YAML
type CatalogBackupService struct {
	db  *database.DB
	log *logger.Logger
}

// NewCatalogBackupService creates a new backup service
func NewCatalogBackupService(db *database.DB, log *logger.Logger) *CatalogBackupService {
	return &CatalogBackupService{db: db, log: log.With("service", "CatalogBackupService")}
}

// Export writes the catalog to a file
func (s *CatalogBackupService) Export(ctx context.Context, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := s.ExportToWriter(ctx, file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ExportToWriter writes every catalog record, placeholders included, to w.
func (s *CatalogBackupService) ExportToWriter(ctx context.Context, w io.Writer) error {
	records, err := repository.NewCombinationRepository(s.db).ListAll(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to export combinations: %w", err)
	}

	backup := CatalogBackup{
		Version:      BackupVersion,
		ExportedAt:   time.Now().UTC(),
		DatabaseType: s.db.GetDialect().DriverName(),
		Combinations: make([]CombinationBackup, 0, len(records)),
	}
	for _, rec := range records {
		b := CombinationBackup{
			Key:             rec.Key,
			ElementA:        rec.ElementA,
			ElementB:        rec.ElementB,
			ResultName:      rec.ResultName,
			ResultEmoji:     rec.ResultEmoji,
			OracleGenerated: rec.Source.OracleGenerated,
			AdminDefined:    rec.Source.AdminDefined,
			Reserved:        rec.Reserved,
			UseCount:        rec.UseCount,
			CreatedAt:       rec.CreatedAt.UTC(),
		}
		if rec.DiscovererUserID != nil {
			b.Discoverer = *rec.DiscovererUserID
		}
		backup.Combinations = append(backup.Combinations, b)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&backup); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to flush backup: %w", err)
	}
	s.log.Info("Catalog exported", "combinations", len(backup.Combinations))
	return nil
}

// Import restores the catalog from a file
func (s *CatalogBackupService) Import(ctx context.Context, inputPath, actor string) (*ImportResult, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()
	return s.ImportFromReader(ctx, file, actor)
}

// ImportFromReader merges a backup into the catalog. Existing keys are never
// overwritten; differing results are reported as conflicts. The import and
// its audit entry commit together.
func (s *CatalogBackupService) ImportFromReader(ctx context.Context, r io.Reader, actor string) (*ImportResult, error) {
	var backup CatalogBackup
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&backup); err != nil {
		return nil, fmt.Errorf("failed to decode backup: %w", err)
	}
	if backup.Version != BackupVersion {
		return nil, fmt.Errorf("unsupported backup version %q", backup.Version)
	}
	s.log.Info("Importing catalog", "exported_at", backup.ExportedAt, "combinations", len(backup.Combinations))

	result := &ImportResult{}
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		catalog := repository.NewCombinationRepository(tx)
		for i, b := range backup.Combinations {
			rec := b.record()
			out, err := catalog.InsertIfAbsent(ctx, rec)
			if err != nil {
				return fmt.Errorf("combination %d (%s): %w", i, b.Key, err)
			}
			if out.Inserted {
				result.Created++
				continue
			}
			result.Skipped++
			if !normalize.Equal(out.Record.ResultName, b.ResultName) {
				result.Conflicts = append(result.Conflicts, models.PathConflict{
					Key:       b.Key,
					Existing:  out.Record.ResultName,
					Requested: b.ResultName,
				})
			}
		}
		return repository.NewAuditRepository(tx).Insert(ctx, &models.CatalogAuditEvent{
			Action: AuditActionImport,
			Key:    "*",
			Actor:  actor,
			Detail: fmt.Sprintf(`{"created":%d,"skipped":%d,"conflicts":%d}`, result.Created, result.Skipped, len(result.Conflicts)),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Catalog import completed",
		"created", result.Created,
		"skipped", result.Skipped,
		"conflicts", len(result.Conflicts),
	)
	return result, nil
}

func (b CombinationBackup) record() *models.CombinationRecord {
	rec := &models.CombinationRecord{
		Key:         b.Key,
		ElementA:    b.ElementA,
		ElementB:    b.ElementB,
		ResultName:  b.ResultName,
		ResultEmoji: b.ResultEmoji,
		Source:      models.Source{OracleGenerated: b.OracleGenerated, AdminDefined: b.AdminDefined},
		Reserved:    b.Reserved,
		UseCount:    b.UseCount,
		CreatedAt:   b.CreatedAt,
	}
	if b.Discoverer != "" {
		d := b.Discoverer
		rec.DiscovererUserID = &d
	}
	return rec
}
