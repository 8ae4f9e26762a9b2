package repository

import (
	"github.com/vidknora/vidknora/internal/types"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open connects to Postgres via gorm and migrates the schema. Schema
// migration here is intentionally gorm's AutoMigrate, not a versioned
// migration tool: spec.md names schema migrations as an out-of-scope
// external collaborator, so this repo only needs "the tables exist",
// not a production migration pipeline.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&types.User{},
		&types.Video{},
		&types.Transcript{},
		&types.Chunk{},
		&types.Job{},
		&types.UserQuota{},
		&types.Conversation{},
		&types.Message{},
		&types.MessageChunkReference{},
		&types.ConversationFact{},
		&types.ConversationInsight{},
	); err != nil {
		return nil, err
	}
	return db, nil
}
