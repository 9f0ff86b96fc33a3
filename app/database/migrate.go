package database

import "reelforge/app/model"

func AutoMigrate() error {
	// Migrate the schema
	return DB.AutoMigrate(
		&model.User{},
		&model.Task{},
		&model.Workflow{},
		&model.WorkflowStage{},
	)
}
