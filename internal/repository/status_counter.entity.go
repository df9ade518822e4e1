package repository

// StatusCounterEntity holds the running number of messages in one status.
type StatusCounterEntity struct {
	Status string `db:"status" gorm:"column:status;primaryKey"`
	Total  int64  `db:"total"  gorm:"column:total;not null;default:0"`
}

func (StatusCounterEntity) TableName() string {
	return "message_status_counters"
}
