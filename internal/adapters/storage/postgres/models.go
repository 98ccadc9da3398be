package postgres

import "time"

// sessionModel is the sessions table. Phases are JSON text columns.
type sessionModel struct {
	ID            string     `gorm:"column:id;primaryKey;type:varchar(64)"`
	EmployeeID    string     `gorm:"column:employee_id;type:varchar(64);not null;index"`
	Status        string     `gorm:"column:status;type:varchar(32);not null;index"`
	ThresholdUsed float64    `gorm:"column:threshold_used;not null"`
	Notes         string     `gorm:"column:notes;type:text"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null;index;autoCreateTime:false"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;not null;autoUpdateTime:false"`
	IssuedAt      *time.Time `gorm:"column:issued_at"`
	ReturnedAt    *time.Time `gorm:"column:returned_at"`
	Handout       *string    `gorm:"column:handout;type:text"`
	Handover      *string    `gorm:"column:handover;type:text"`
	Hash          string     `gorm:"column:hash;type:varchar(80)"`
	Version       int64      `gorm:"column:version;not null"`
}

func (sessionModel) TableName() string {
	return "sessions"
}

// eventModel is the session_events table; Seq preserves append order.
type eventModel struct {
	Seq        uint64    `gorm:"column:seq;primaryKey;autoIncrement"`
	ID         string    `gorm:"column:id;type:varchar(64);not null"`
	SessionID  string    `gorm:"column:session_id;type:varchar(64);not null;index"`
	Kind       string    `gorm:"column:kind;type:varchar(32);not null"`
	FromStatus string    `gorm:"column:from_status;type:varchar(32);not null"`
	ToStatus   string    `gorm:"column:to_status;type:varchar(32);not null"`
	Actor      string    `gorm:"column:actor;type:varchar(64)"`
	At         time.Time `gorm:"column:at;not null"`
}

func (eventModel) TableName() string {
	return "session_events"
}
