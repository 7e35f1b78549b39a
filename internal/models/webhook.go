package models

import "time"

type ProcessedWebhook struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EventID     string    `gorm:"size:255;not null;uniqueIndex" json:"event_id"`
	Provider    string    `gorm:"size:30;not null" json:"provider"`
	EventType   string    `gorm:"size:100;not null;index" json:"event_type"`
	Reference   string    `gorm:"size:100;index" json:"reference"`
	PayloadHash string    `gorm:"size:64" json:"payload_hash"`
	IPAddress   string    `gorm:"size:45" json:"ip_address"`
	CreatedAt   time.Time `json:"created_at"`
}

func (ProcessedWebhook) TableName() string {
	return "processed_webhooks"
}
