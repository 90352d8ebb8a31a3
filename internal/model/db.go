package model

import "gorm.io/gorm"

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Module{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&Node{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&Card{}); err != nil {
		return err
	}

	return db.AutoMigrate(&Task{})
}
