package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// ErrDirtyMigration は前回のマイグレーションが途中で失敗している場合のエラー
var ErrDirtyMigration = errors.New("マイグレーションが dirty 状態です")

// RunMigrations は未適用のマイグレーションを適用し、適用後のバージョンを返す
// db は呼び出し側が所有するため閉じない
func RunMigrations(db *sql.DB, migrationsPath string) (uint, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return 0, fmt.Errorf("マイグレーションドライバー作成エラー: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("マイグレーションインスタンス作成エラー: %w", err)
	}

	if _, dirty, err := m.Version(); err == nil && dirty {
		return 0, ErrDirtyMigration
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("マイグレーション実行エラー: %w", err)
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("マイグレーションバージョン取得エラー: %w", err)
	}
	return version, nil
}
