package database

import (
	"fmt"

	"reelforge/app/config"
	"reelforge/app/logger"
	"reelforge/app/model"
	"reelforge/app/utils"
)

// InitAdminUser seeds the admin account.
func InitAdminUser(cfg *config.Config, log *logger.Logger) error {
	// The admin username and password must come from the config file
	if cfg.Server.Username == "" || cfg.Server.Password == "" {
		log.Errorf("admin account is not configured, set username and password in the config file")
		return fmt.Errorf("admin account config must not be empty, set username and password in the config file")
	}

	// Look for an existing admin user regardless of its username
	var existingAdmin model.User
	result := DB.Where("is_admin = ?", true).First(&existingAdmin)

	if result.Error == nil {
		// Admin exists, check whether username or password need updating
		needUpdate := false

		if existingAdmin.Username != cfg.Server.Username {
			// Make sure the new username is not taken by another user
			var conflictUser model.User
			conflictResult := DB.Where("username = ? AND id != ?", cfg.Server.Username, existingAdmin.ID).First(&conflictUser)
			if conflictResult.Error == nil {
				return fmt.Errorf("username '%s' is already taken, cannot rename the admin user", cfg.Server.Username)
			}

			oldUsername := existingAdmin.Username
			existingAdmin.Username = cfg.Server.Username
			needUpdate = true
			log.Infof("admin username changed from '%s' to '%s'", oldUsername, cfg.Server.Username)
		}

		if !utils.VerifyPassword(cfg.Server.Password, existingAdmin.Password) {
			expectedHash, err := utils.HashPassword(cfg.Server.Password)
			if err != nil {
				return fmt.Errorf("failed to hash password: %v", err)
			}
			existingAdmin.Password = expectedHash
			needUpdate = true
			log.Infof("password of admin '%s' updated", cfg.Server.Username)
		}

		if needUpdate {
			if err := DB.Save(&existingAdmin).Error; err != nil {
				return fmt.Errorf("failed to update admin account: %v", err)
			}
		} else {
			log.Infof("admin '%s' already exists, nothing to update", cfg.Server.Username)
		}
		return nil
	}

	// No admin user yet, create one
	hashedPassword, err := utils.HashPassword(cfg.Server.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %v", err)
	}

	adminUser := model.User{
		Username: cfg.Server.Username,
		Password: hashedPassword,
		Email:    "admin@reelforge.local",
		IsActive: true,
		IsAdmin:  true,
	}

	if err := DB.Create(&adminUser).Error; err != nil {
		return fmt.Errorf("failed to create admin account: %v", err)
	}

	log.Infof("admin account '%s' created", cfg.Server.Username)
	return nil
}
