package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

// 由外部服务维护、本服务只读的表
var externalTables = []string{"trips", "trip_collaborators"}

// MigrateDB 迁移本服务自己拥有的表，并检查外部表是否存在。
// 返回错误以便调用者知道迁移是否成功。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	if err := db.AutoMigrate(&domain.ConflictLog{}); err != nil {
		logrus.Errorf("Failed to auto-migrate conflict_logs table: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	for _, table := range externalTables {
		if !tableExists(db, table) {
			// 外部表缺失时房间准入检查会失败，但不阻止启动
			logrus.Warnf("Table '%s' not found; trip access checks will fail until it exists", table)
		}
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

func tableExists(db *gorm.DB, name string) bool {
	var count int64
	db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?", name).Scan(&count)
	return count > 0
}
