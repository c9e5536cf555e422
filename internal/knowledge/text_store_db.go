package knowledge

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sentenceRow 文本表的最小结构
type sentenceRow struct {
	ID       string `gorm:"column:id;primaryKey;size:36"`
	FullText string `gorm:"column:full_text"`
	Sequence int    `gorm:"column:sequence"`
}

// DatabaseTextStore 基于PostgreSQL的文本存储
type DatabaseTextStore struct {
	db    *gorm.DB
	table string
}

// NewDatabaseTextStore 创建数据库文本存储，连接由调用方持有
func NewDatabaseTextStore(db *gorm.DB, table string) (*DatabaseTextStore, error) {
	if table == "" {
		table = "sentences"
	}
	if err := validateTableName(table); err != nil {
		return nil, err
	}
	return &DatabaseTextStore{db: db, table: table}, nil
}

func (d *DatabaseTextStore) Reset(ctx context.Context) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %q`, d.table)).Error; err != nil {
			return fmt.Errorf("drop table failed: %w", err)
		}
		create := fmt.Sprintf(`CREATE TABLE %q (
			id varchar(36) PRIMARY KEY,
			full_text text NOT NULL,
			sequence bigint NOT NULL
		)`, d.table)
		if err := tx.Exec(create).Error; err != nil {
			return fmt.Errorf("create table failed: %w", err)
		}
		return nil
	})
}

func (d *DatabaseTextStore) UpsertBatch(ctx context.Context, records []TextRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]sentenceRow, len(records))
	for i, r := range records {
		rows[i] = sentenceRow{ID: r.ID, FullText: r.Text, Sequence: r.Sequence}
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Table(d.table).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"full_text", "sequence"}),
			}).
			Create(&rows).Error
		if err != nil {
			return fmt.Errorf("upsert sentences failed: %w", err)
		}
		return nil
	})
}

func (d *DatabaseTextStore) Lookup(ctx context.Context, id string) (string, bool, error) {
	var row sentenceRow
	err := d.db.WithContext(ctx).Table(d.table).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup sentence failed: %w", err)
	}
	return row.FullText, true, nil
}

func (d *DatabaseTextStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.WithContext(ctx).Table(d.table).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count sentences failed: %w", err)
	}
	return count, nil
}

func (d *DatabaseTextStore) Ready() bool {
	if d.db == nil {
		return false
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.Ping() == nil
}

// Close 连接由 database 包统一关闭
func (d *DatabaseTextStore) Close() error {
	return nil
}
