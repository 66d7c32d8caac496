package event

import "github.com/jinzhu/gorm"

var (
	EventPersistCreateFunc = eventPersistCreate
)

func eventPersistCreate(record *EventRecord, db *gorm.DB) error {
	return db.Create(record).Error
}

// MarkSynced flags a record as delivered to the search index.
func MarkSynced(record *EventRecord, db *gorm.DB) error {
	if err := db.Model(&EventRecord{}).Where("id = ?", record.ID).Update("synced", true).Error; err != nil {
		return err
	}
	record.Synced = true
	return nil
}
