package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoredToken is the single persisted credential row.
type StoredToken struct {
	SessionKey string    `gorm:"column:session_key;primaryKey;size:64"`
	Token      string    `gorm:"column:token;type:text"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (StoredToken) TableName() string {
	return "session_tokens"
}

// GormStore persists the token in a SQL database through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store on db. Call AutoMigrate before first use.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate ensures the schema is available.
func (g *GormStore) AutoMigrate(ctx context.Context) error {
	return g.db.WithContext(ctx).AutoMigrate(&StoredToken{})
}

func (g *GormStore) Load(ctx context.Context) (string, error) {
	var row StoredToken
	err := g.db.WithContext(ctx).First(&row, "session_key = ?", TokenKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Token, nil
}

func (g *GormStore) Save(ctx context.Context, token string) error {
	row := StoredToken{SessionKey: TokenKey, Token: token, UpdatedAt: time.Now().UTC()}
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

func (g *GormStore) Delete(ctx context.Context) error {
	return g.db.WithContext(ctx).Where("session_key = ?", TokenKey).Delete(&StoredToken{}).Error
}
