package postgres

import "time"

// TokenRecord is one row of the token catalog. The feed reads the active
// pairs of its server group and writes price/timestamp back by base symbol.
type TokenRecord struct {
	ID uint `gorm:"primaryKey"`

	FromPair string `gorm:"type:varchar(32);not null;uniqueIndex:idx_tokens_pair;index:idx_tokens_from_pair"`
	ToPair   string `gorm:"type:varchar(32);not null;uniqueIndex:idx_tokens_pair"`

	IsActive    bool   `gorm:"not null;index:idx_tokens_active_group"`
	ServerGroup string `gorm:"type:varchar(16);not null;index:idx_tokens_active_group"`

	// Price is the value scaled by 10^18, kept as an exact integer.
	Price     *string    `gorm:"type:numeric(78,0)"`
	Timestamp *time.Time `gorm:"index:idx_tokens_timestamp"`

	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the default table name for GORM.
func (TokenRecord) TableName() string {
	return "tokens"
}
