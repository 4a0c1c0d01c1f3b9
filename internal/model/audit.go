package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AuditLog model
type AuditLog struct {
	ID         uint64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     *uint64      `gorm:"index" json:"userId"`
	Action     string       `gorm:"type:varchar(32);not null" json:"action"`
	Resource   string       `gorm:"type:varchar(32);not null;index" json:"resource"`
	ResourceID *string      `gorm:"type:varchar(64)" json:"resourceId,omitempty"`
	Details    AuditDetails `gorm:"type:text" json:"details"`
	Status     string       `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt  time.Time    `gorm:"index" json:"createdAt"`
}

// TableName set name
func (AuditLog) TableName() string {
	return "audit_logs"
}

const (
	AuditStatusSuccess = "SUCCESS"
	AuditStatusFailure = "FAILURE"
)

// AuditChange is one field transition
type AuditChange struct {
	Field string      `json:"field"`
	Old   interface{} `json:"old"`
	New   interface{} `json:"new"`
}

// AuditDetails is stored as a JSON document
type AuditDetails struct {
	ResourceName string        `json:"resourceName,omitempty"`
	Changes      []AuditChange `json:"changes,omitempty"`
	Message      string        `json:"message,omitempty"`
}

// Value implement driver.Valuer interface
func (d AuditDetails) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implement sql.Scanner interface
func (d *AuditDetails) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*d = AuditDetails{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("cannot scan %T into AuditDetails", value)
	}
}
