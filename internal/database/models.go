package database

import "time"

// ChatRecord is one chat from creation to shutdown.
type ChatRecord struct {
	ID           uint   `gorm:"primaryKey"`
	ChatID       string `gorm:"uniqueIndex;not null"`
	HostUsername string `gorm:"not null"`
	UserLimit    int    `gorm:"not null"`
	CreatedAt    time.Time
	ClosedAt     *time.Time
}

func (ChatRecord) TableName() string { return "chats" }

// MemberRecord is one membership of a chat. Messages are never stored.
type MemberRecord struct {
	ID         uint   `gorm:"primaryKey"`
	ChatID     string `gorm:"index;not null"`
	ConnID     string `gorm:"index;not null"`
	Username   string `gorm:"not null"`
	Thumbprint string
	JoinedAt   time.Time
	LeftAt     *time.Time
}

func (MemberRecord) TableName() string { return "members" }
