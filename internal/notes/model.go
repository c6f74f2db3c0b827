package notes

import "time"

// Note models a persisted note. The owner reference goes NULL when the
// owning account is deleted; orphaned notes survive but match no
// ownership-scoped query.
type Note struct {
	ID         string     `gorm:"column:id;primaryKey;size:190;not null"`
	OwnerID    *string    `gorm:"column:owner_id;size:190;index:idx_notes_owner_state,priority:1"`
	Title      string     `gorm:"column:title;size:255;not null"`
	Content    string     `gorm:"column:content;type:text;not null"`
	IsFavorite bool       `gorm:"column:is_favorite;not null;default:false"`
	IsDeleted  bool       `gorm:"column:is_deleted;not null;default:false;index:idx_notes_owner_state,priority:2"`
	DeletedAt  *time.Time `gorm:"column:deleted_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}
