package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jackzampolin/talespin/internal/prompts"
)

// Connection retry settings for NewSQLStore.
const (
	connectAttempts = 5
	connectDelay    = time.Second
)

// Save retries a transaction that lost a lock conflict on the title rows.
const (
	saveAttempts = 5
	saveDelay    = 50 * time.Millisecond
)

// MySQL error numbers for lock conflicts.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

type storyRow struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	Content      string    `gorm:"type:longtext"`
	Title        string    `gorm:"type:varchar(255)"`
	TemplateName string    `gorm:"type:varchar(191);index"`
	CreatedAt    time.Time `gorm:"type:datetime(3);index"`
}

func (storyRow) TableName() string { return "stories" }

func (r storyRow) story() Story {
	return Story{
		Content:      r.Content,
		Timestamp:    formatTimestamp(r.CreatedAt),
		ID:           r.ID,
		Title:        r.Title,
		TemplateName: r.TemplateName,
	}
}

// settingRow holds the language under "language" and prompt overrides
// under "prompt:{key}".
type settingRow struct {
	Name      string    `gorm:"primaryKey;type:varchar(191)"`
	Value     string    `gorm:"type:longtext"`
	Note      string    `gorm:"type:text"`
	UpdatedAt time.Time `gorm:"type:datetime(3)"`
}

func (settingRow) TableName() string { return "settings" }

// SQLStore keeps stories and settings in MySQL through gorm.
type SQLStore struct {
	db     *gorm.DB
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLStore connects to cfg.DSN, retrying while the server comes up, and
// migrates the stories and settings tables.
func NewSQLStore(ctx context.Context, cfg Config) (*SQLStore, error) {
	cfg = cfg.withDefaults()
	dsn, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	var db *gorm.DB
	err = retry.Do(
		func() error {
			conn, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
				Logger: gormlogger.Default.LogMode(gormlogger.Silent),
			})
			if err != nil {
				return err
			}
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				_ = sqlDB.Close()
				return err
			}
			db = conn
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(connectAttempts),
		retry.Delay(connectDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			cfg.Logger.Warn("mysql not ready, retrying", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&storyRow{}, &settingRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}
	cfg.Logger.Info("connected to mysql storage")

	return &SQLStore{db: db, cfg: cfg, logger: cfg.Logger, now: time.Now}, nil
}

// normalizeDSN validates dsn and enables time parsing, which the
// timestamp columns need.
func normalizeDSN(dsn string) (string, error) {
	if strings.TrimSpace(dsn) == "" {
		return "", fmt.Errorf("mysql dsn is required")
	}
	parsed, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	parsed.ParseTime = true
	parsed.Loc = time.UTC
	return parsed.FormatDSN(), nil
}

// isLockConflict reports whether err is a MySQL deadlock or lock wait timeout.
func isLockConflict(err error) bool {
	var myErr *mysqldriver.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	return myErr.Number == errDeadlock || myErr.Number == errLockWaitTimeout
}

// Driver returns "mysql".
func (s *SQLStore) Driver() string { return DriverMySQL }

// Close closes the connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) Save(ctx context.Context, content, templateName, title string) string {
	templateName = normalizeTemplate(templateName)
	row := storyRow{
		ID:           uuid.NewString(),
		Content:      content,
		Title:        title,
		TemplateName: templateName,
		CreatedAt:    s.now().UTC(),
	}

	// The title rows of the template are locked while the next number is
	// chosen, so concurrent saves of one template get distinct numbers.
	// Two saves racing on an empty gap can deadlock; the loser retries.
	err := retry.Do(
		func() error {
			return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				row.Title = title
				if strings.TrimSpace(row.Title) == "" {
					var titles []string
					err := tx.Model(&storyRow{}).
						Clauses(clause.Locking{Strength: "UPDATE"}).
						Where("template_name = ?", templateName).
						Pluck("title", &titles).Error
					if err != nil {
						return err
					}
					row.Title = nextAutoTitle(s.cfg.TitlePrefix, templateName, titles)
				}
				return tx.Create(&row).Error
			})
		},
		retry.Context(ctx),
		retry.Attempts(saveAttempts),
		retry.Delay(saveDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isLockConflict),
	)
	if err != nil {
		s.logger.Error("failed to save story", "error", err)
		return ""
	}
	s.logger.Info("saved story", "id", row.ID, "title", row.Title)
	return row.ID
}

func (s *SQLStore) List(ctx context.Context) []Story {
	var rows []storyRow
	if err := s.db.WithContext(ctx).Order("created_at desc").Find(&rows).Error; err != nil {
		s.logger.Error("failed to list stories", "error", err)
		return []Story{}
	}
	stories := make([]Story, 0, len(rows))
	for _, r := range rows {
		stories = append(stories, r.story())
	}
	return stories
}

func (s *SQLStore) Get(ctx context.Context, id string) *Story {
	row, err := s.find(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("failed to load story", "id", id, "error", err)
		}
		return nil
	}
	st := row.story()
	return &st
}

func (s *SQLStore) find(ctx context.Context, id string) (*storyRow, error) {
	var row storyRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) bool {
	if err := s.db.WithContext(ctx).Delete(&storyRow{}, "id = ?", id).Error; err != nil {
		s.logger.Error("failed to delete story", "id", id, "error", err)
		return false
	}
	return true
}

func (s *SQLStore) Language(ctx context.Context) string {
	row, err := s.setting(ctx, languageKey)
	if err != nil {
		s.logger.Error("failed to load language", "error", err)
	}
	if row == nil || row.Value == "" {
		return s.cfg.DefaultLanguage
	}
	return row.Value
}

func (s *SQLStore) SetLanguage(ctx context.Context, lang string) bool {
	return s.putSetting(ctx, settingRow{Name: languageKey, Value: lang})
}

func (s *SQLStore) PromptOverride(ctx context.Context, key string) *prompts.Override {
	row, err := s.setting(ctx, overrideKey(key))
	if err != nil {
		s.logger.Error("failed to load prompt override", "key", key, "error", err)
		return nil
	}
	if row == nil {
		return nil
	}
	return &prompts.Override{Key: key, Text: row.Value, Note: row.Note, UpdatedAt: row.UpdatedAt}
}

func (s *SQLStore) SetPromptOverride(ctx context.Context, key, text, note string) bool {
	return s.putSetting(ctx, settingRow{Name: overrideKey(key), Value: text, Note: note})
}

func (s *SQLStore) ClearPromptOverride(ctx context.Context, key string) bool {
	if err := s.db.WithContext(ctx).Delete(&settingRow{}, "name = ?", overrideKey(key)).Error; err != nil {
		s.logger.Error("failed to clear prompt override", "key", key, "error", err)
		return false
	}
	return true
}

func (s *SQLStore) setting(ctx context.Context, name string) (*settingRow, error) {
	var row settingRow
	err := s.db.WithContext(ctx).First(&row, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *SQLStore) putSetting(ctx context.Context, row settingRow) bool {
	row.UpdatedAt = s.now().UTC()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		s.logger.Error("failed to save setting", "name", row.Name, "error", err)
		return false
	}
	return true
}

var _ Store = (*SQLStore)(nil)
