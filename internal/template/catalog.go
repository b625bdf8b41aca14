package template

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dingercity/chimefind/internal/audio"
	"github.com/dingercity/chimefind/pkg/utils"
)

const errCatalogNil = "catalog is nil"

// Asset is one cataloged reference chime. The stored WAV is the trimmed,
// normalized form so every run sees identical template content; Checksum
// lets drift between catalog and file be detected.
type Asset struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	Label       string `gorm:"uniqueIndex:idx_asset_label"`
	SourceLabel string
	FilePath    string
	Checksum    string `gorm:"type:varchar(64)"`
	DurationMs  int
	SampleRate  int
	RMS         float64
	CreatedAt   time.Time
}

// Catalog is the versioned template store backing a detection run.
type Catalog struct {
	DB       *gorm.DB
	db       *sql.DB
	assetDir string
}

// OpenCatalog opens (or creates) the catalog database at dbPath. Trimmed
// template WAVs are written beside it under assetDir.
func OpenCatalog(dbPath, assetDir string) (*Catalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := utils.MakeDir(dir); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}
	if err := utils.MakeDir(assetDir); err != nil {
		return nil, fmt.Errorf("creating asset dir: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	if err := db.AutoMigrate(&Asset{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Catalog{DB: db, db: sqlDB, assetDir: assetDir}, nil
}

func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Register trims and normalizes the WAV at wavPath, writes the processed
// form into the asset directory, and records it. Re-registering an
// existing label returns the existing asset ID unchanged.
func (c *Catalog) Register(wavPath, label, sourceLabel string, canonicalRate int) (string, error) {
	if c == nil || c.DB == nil {
		return "", errors.New(errCatalogNil)
	}

	var existing Asset
	err := c.DB.Where("label = ?", label).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("querying existing asset: %w", err)
	}

	id := uuid.NewString()
	tpl, err := Load(wavPath, id, label, sourceLabel, canonicalRate)
	if err != nil {
		return "", err
	}

	assetPath := filepath.Join(c.assetDir, id+".wav")
	if err := audio.WriteWAV(assetPath, tpl.Samples, tpl.SampleRate); err != nil {
		return "", fmt.Errorf("writing template asset: %w", err)
	}

	checksum, err := fileChecksum(assetPath)
	if err != nil {
		os.Remove(assetPath)
		return "", err
	}

	asset := Asset{
		ID:          id,
		Label:       label,
		SourceLabel: sourceLabel,
		FilePath:    assetPath,
		Checksum:    checksum,
		DurationMs:  int(tpl.Seconds() * 1000),
		SampleRate:  tpl.SampleRate,
		RMS:         tpl.RMS(),
	}
	if err := c.DB.Create(&asset).Error; err != nil {
		os.Remove(assetPath)
		return "", fmt.Errorf("creating asset row: %w", err)
	}
	return id, nil
}

// List returns every cataloged asset ordered by creation time.
func (c *Catalog) List() ([]Asset, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errCatalogNil)
	}
	var assets []Asset
	if err := c.DB.Order("created_at, id").Find(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

// Remove deletes an asset row and its WAV file.
func (c *Catalog) Remove(id string) error {
	if c == nil || c.DB == nil {
		return errors.New(errCatalogNil)
	}
	var asset Asset
	if err := c.DB.Where("id = ?", id).First(&asset).Error; err != nil {
		return fmt.Errorf("asset %s: %w", id, err)
	}
	if err := c.DB.Delete(&asset).Error; err != nil {
		return err
	}
	if asset.FilePath != "" {
		os.Remove(asset.FilePath)
	}
	return nil
}

// LoadAll loads every cataloged asset as a ready-to-correlate Template at
// the canonical rate. An asset whose file checksum no longer matches its
// catalog row is rejected rather than silently used.
func (c *Catalog) LoadAll(canonicalRate int) ([]*Template, error) {
	assets, err := c.List()
	if err != nil {
		return nil, err
	}

	templates := make([]*Template, 0, len(assets))
	for _, a := range assets {
		sum, err := fileChecksum(a.FilePath)
		if err != nil {
			return nil, fmt.Errorf("template asset %s (%q): %w", a.ID, a.Label, err)
		}
		if sum != a.Checksum {
			return nil, fmt.Errorf("template asset %s (%q) does not match its cataloged checksum", a.ID, a.Label)
		}
		tpl, err := Load(a.FilePath, a.ID, a.Label, a.SourceLabel, canonicalRate)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, nil
}

func fileChecksum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
