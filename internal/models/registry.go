package models

// All returns every model the rental core migrates
func All() []interface{} {
	return []interface{}{
		&RentalRecord{},
		&Reservation{},
		&SerialCounter{},
		&SerialAuditLog{},
		&Property{},
		&Invoice{},
		&FollowUpTask{},
		&Notification{},
	}
}
