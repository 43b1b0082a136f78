package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/spec-kit/support-client/internal/domain"
)

// ErrNotFound is returned when nothing has been stored yet.
var ErrNotFound = errors.New("repository: not found")

// SessionRepository persists the single session record of this device.
type SessionRepository interface {
	Load(ctx context.Context) (*domain.SessionRecord, error)
	Save(ctx context.Context, record domain.SessionRecord) error
	Clear(ctx context.Context) error
}

// BrandingRepository caches the last branding seen. It is device scoped and
// survives logout.
type BrandingRepository interface {
	Load(ctx context.Context) (*domain.Branding, error)
	Save(ctx context.Context, branding domain.Branding) error
}

type memorySessionRepository struct {
	mu     sync.Mutex
	record *domain.SessionRecord
}

// NewMemorySessionRepository keeps the session in process memory.
func NewMemorySessionRepository() SessionRepository {
	return &memorySessionRepository{}
}

func (r *memorySessionRepository) Load(ctx context.Context) (*domain.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.record == nil {
		return nil, ErrNotFound
	}
	rec := cloneRecord(*r.record)
	return &rec, nil
}

func (r *memorySessionRepository) Save(ctx context.Context, record domain.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := cloneRecord(record)
	r.record = &rec
	return nil
}

func (r *memorySessionRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record = nil
	return nil
}

type memoryBrandingRepository struct {
	mu       sync.Mutex
	branding *domain.Branding
}

// NewMemoryBrandingRepository keeps branding in process memory.
func NewMemoryBrandingRepository() BrandingRepository {
	return &memoryBrandingRepository{}
}

func (r *memoryBrandingRepository) Load(ctx context.Context) (*domain.Branding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.branding == nil {
		return nil, ErrNotFound
	}
	b := *r.branding
	return &b, nil
}

func (r *memoryBrandingRepository) Save(ctx context.Context, branding domain.Branding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.branding = &branding
	return nil
}

// singletonKey is the primary key of the only session and branding rows.
const singletonKey = 1

// SessionModel is the sqlite row for the session record.
type SessionModel struct {
	ID               uint   `gorm:"primaryKey"`
	State            string `gorm:"size:16;not null"`
	CustomerID       string `gorm:"size:64"`
	Email            *string
	OriginalID       *string
	Anonymous        bool
	DeviceToken      *string
	DeviceOriginalID *string
	Token            string `gorm:"type:text"`
	TokenExpiresAt   time.Time
	RecordedAt       time.Time
}

// TableName overrides the gorm default.
func (SessionModel) TableName() string { return "support_session" }

// BrandingModel is the sqlite row for cached branding.
type BrandingModel struct {
	ID             uint `gorm:"primaryKey"`
	Title          string
	AccentColor    string `gorm:"size:16"`
	LogoURL        string
	WelcomeMessage string `gorm:"type:text"`
	// ChangedAt is the server's branding timestamp, used for conditional fetches.
	ChangedAt time.Time
}

// TableName overrides the gorm default.
func (BrandingModel) TableName() string { return "support_branding" }

// AutoMigrate creates or updates the local session tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&SessionModel{}, &BrandingModel{}); err != nil {
		return fmt.Errorf("repository: auto-migrate: %w", err)
	}
	return nil
}

type gormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository stores the session in a gorm database.
func NewGormSessionRepository(db *gorm.DB) SessionRepository {
	return &gormSessionRepository{db: db}
}

func (r *gormSessionRepository) Load(ctx context.Context) (*domain.SessionRecord, error) {
	var row SessionModel
	err := r.db.WithContext(ctx).First(&row, singletonKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	rec := domain.SessionRecord{
		State: domain.SessionState(row.State),
		Customer: domain.Customer{
			ID:         row.CustomerID,
			Email:      row.Email,
			OriginalID: row.OriginalID,
			Anonymous:  row.Anonymous,
		},
		Token:          row.Token,
		TokenExpiresAt: row.TokenExpiresAt,
		UpdatedAt:      row.RecordedAt,
	}
	if row.DeviceToken != nil {
		rec.Device = &domain.Device{Token: *row.DeviceToken, OriginalID: row.DeviceOriginalID}
	}
	return &rec, nil
}

func (r *gormSessionRepository) Save(ctx context.Context, record domain.SessionRecord) error {
	row := SessionModel{
		ID:             singletonKey,
		State:          string(record.State),
		CustomerID:     record.Customer.ID,
		Email:          record.Customer.Email,
		OriginalID:     record.Customer.OriginalID,
		Anonymous:      record.Customer.Anonymous,
		Token:          record.Token,
		TokenExpiresAt: record.TokenExpiresAt,
		RecordedAt:     record.UpdatedAt,
	}
	if record.Device != nil {
		token := record.Device.Token
		row.DeviceToken = &token
		row.DeviceOriginalID = record.Device.OriginalID
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *gormSessionRepository) Clear(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Delete(&SessionModel{}, singletonKey).Error; err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

type gormBrandingRepository struct {
	db *gorm.DB
}

// NewGormBrandingRepository stores branding in a gorm database.
func NewGormBrandingRepository(db *gorm.DB) BrandingRepository {
	return &gormBrandingRepository{db: db}
}

func (r *gormBrandingRepository) Load(ctx context.Context) (*domain.Branding, error) {
	var row BrandingModel
	err := r.db.WithContext(ctx).First(&row, singletonKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load branding: %w", err)
	}
	return &domain.Branding{
		Title:          row.Title,
		AccentColor:    row.AccentColor,
		LogoURL:        row.LogoURL,
		WelcomeMessage: row.WelcomeMessage,
		UpdatedAt:      row.ChangedAt,
	}, nil
}

func (r *gormBrandingRepository) Save(ctx context.Context, branding domain.Branding) error {
	row := BrandingModel{
		ID:             singletonKey,
		Title:          branding.Title,
		AccentColor:    branding.AccentColor,
		LogoURL:        branding.LogoURL,
		WelcomeMessage: branding.WelcomeMessage,
		ChangedAt:      branding.UpdatedAt,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save branding: %w", err)
	}
	return nil
}

func cloneRecord(rec domain.SessionRecord) domain.SessionRecord {
	out := rec
	out.Customer.Email = cloneString(rec.Customer.Email)
	out.Customer.OriginalID = cloneString(rec.Customer.OriginalID)
	if rec.Device != nil {
		d := *rec.Device
		d.OriginalID = cloneString(rec.Device.OriginalID)
		out.Device = &d
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
