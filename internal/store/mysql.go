package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"collabcore/internal/model"
)

// OpenMySQL opens a gorm connection against dsn, grounded in
// gateway/backend/internal/store/mysql_gorm.go's InitMySQL. It does not
// migrate documentRow/snapshotRow; callers run MySQLStore.Migrate for
// that.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return db, nil
}

type documentRow struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	OwnerID   string `gorm:"type:varchar(64);index"`
	Title     string `gorm:"type:varchar(255);uniqueIndex"`
	CreatedAt time.Time
}

func (documentRow) TableName() string { return "documents" }

type snapshotRow struct {
	EditorID  string `gorm:"primaryKey;type:varchar(64)"`
	Content   string `gorm:"type:mediumtext"`
	Version   int
	ClientID  string `gorm:"type:varchar(128)"`
	UpdatedAt time.Time
}

func (snapshotRow) TableName() string { return "editor_snapshots" }

// MySQLStore implements both SnapshotStore and DocumentResolver over a
// single gorm.DB, grounded in
// gateway/backend/internal/store/Snapshot.go and
// collab-service/backend/internal/store/document_store.go — the former
// already on gorm, the latter on raw database/sql; standardized here on
// gorm for a single idiomatic ORM surface.
type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(db *gorm.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// Migrate creates the backing tables if they don't already exist.
func (s *MySQLStore) Migrate() error {
	return s.db.AutoMigrate(&documentRow{}, &snapshotRow{})
}

func (s *MySQLStore) SaveSnapshot(ctx context.Context, editorID string, snap model.EditorSnapshot) error {
	row := snapshotRow{
		EditorID: editorID,
		Content:  snap.Content,
		Version:  snap.Version,
		ClientID: snap.ClientID,
	}
	err := s.db.WithContext(ctx).
		Where(snapshotRow{EditorID: editorID}).
		Assign(row).
		FirstOrCreate(&row).Error
	if err != nil {
		return fmt.Errorf("save snapshot for editor %q: %w", editorID, err)
	}
	return nil
}

func (s *MySQLStore) LoadLatestSnapshot(ctx context.Context, editorID string) (model.EditorSnapshot, bool, error) {
	var row snapshotRow
	err := s.db.WithContext(ctx).Where("editor_id = ?", editorID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.EditorSnapshot{}, false, nil
	}
	if err != nil {
		return model.EditorSnapshot{}, false, fmt.Errorf("load snapshot for editor %q: %w", editorID, err)
	}
	return model.EditorSnapshot{
		ID:        row.EditorID,
		Content:   row.Content,
		Version:   row.Version,
		ClientID:  row.ClientID,
		Timestamp: row.UpdatedAt,
	}, true, nil
}

func (s *MySQLStore) ResolveDocumentID(ctx context.Context, title string) (string, error) {
	var row documentRow
	err := s.db.WithContext(ctx).Where("title = ?", title).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrDocumentNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve document %q: %w", title, err)
	}
	return row.ID, nil
}

func (s *MySQLStore) CreateDocument(ctx context.Context, ownerID, title string) (string, error) {
	id := fmt.Sprintf("doc-%s", title)
	row := documentRow{ID: id, OwnerID: ownerID, Title: title}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("create document %q: %w", title, err)
	}
	return row.ID, nil
}
