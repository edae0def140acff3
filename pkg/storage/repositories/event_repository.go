package repositories

import (
	"fmt"
	"time"

	"github.com/tphan267/arqut-signal/pkg/models"
	"gorm.io/gorm"
)

// DefaultListLimit caps List when the filter sets no limit.
const DefaultListLimit = 100

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) (*EventRepository, error) {
	if err := db.AutoMigrate(&models.CallEvent{}); err != nil {
		return nil, fmt.Errorf("failed to migrate call events: %w", err)
	}
	return &EventRepository{db: db}, nil
}

// Create stores an event
func (r *EventRepository) Create(event *models.CallEvent) error {
	if event.SessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if event.Kind == "" {
		return fmt.Errorf("event kind cannot be empty")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return r.db.Create(event).Error
}

// List returns events newest first
func (r *EventRepository) List(filter models.EventFilter) ([]*models.CallEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var events []*models.CallEvent
	if err := r.scope(filter).Order("created_at DESC, id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// CountByKind returns how many events of each kind match the filter
func (r *EventRepository) CountByKind(filter models.EventFilter) (map[string]int, error) {
	var rows []struct {
		Kind  string
		Total int
	}
	err := r.scope(filter).
		Model(&models.CallEvent{}).
		Select("kind, COUNT(*) AS total").
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Kind] = row.Total
	}
	return counts, nil
}

func (r *EventRepository) Count() (int, error) {
	var count int64
	if err := r.db.Model(&models.CallEvent{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// Clear removes all events
func (r *EventRepository) Clear() error {
	return r.db.Delete(&models.CallEvent{}, "1=1").Error
}

func (r *EventRepository) scope(filter models.EventFilter) *gorm.DB {
	q := r.db.Model(&models.CallEvent{})
	if filter.SessionID != "" {
		q = q.Where("session_id = ?", filter.SessionID)
	}
	if filter.Room != "" {
		q = q.Where("room = ?", filter.Room)
	}
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	return q
}
