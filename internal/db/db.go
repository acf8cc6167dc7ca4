package db

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/voicethink/coach/internal/conversation"
	"github.com/voicethink/coach/internal/models"
	"github.com/voicethink/coach/internal/profile"
)

func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	return gdb
}

// Migrate creates or updates every table the service owns.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&profile.Session{},
		&profile.UserProfile{},
		&profile.Goal{},
		&conversation.Prompt{},
		&conversation.PromptContext{},
		&conversation.Conversation{},
		&conversation.Turn{},
		&conversation.Job{},
	)
}
