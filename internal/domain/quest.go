package domain

import (
	"fmt"
	"strings"
)

// QuestType - тип квеста
type QuestType string

const (
	QuestTypeAds     QuestType = "ads"
	QuestTypeDefault QuestType = "default"
)

// QuestDefinition - шаблон задания (read-only конфиг)
type QuestDefinition struct {
	ID      string    `yaml:"id" json:"id"`
	Type    QuestType `yaml:"type" json:"type"`
	Title   string    `yaml:"title" json:"title"`
	Icon    string    `yaml:"icon" json:"icon"`
	Reward  int64     `yaml:"reward" json:"reward"`
	Action  string    `yaml:"action" json:"action"`
	Link    string    `yaml:"link,omitempty" json:"link,omitempty"`
	AdLimit int       `yaml:"adLimit,omitempty" json:"adLimit,omitempty"`
	AdType  string    `yaml:"adType,omitempty" json:"adType,omitempty"`
}

// IsAdQuest reports whether progress is counted in ad watches
func (q QuestDefinition) IsAdQuest() bool {
	return q.Type == QuestTypeAds
}

// Validate checks the definition can be used as a document path segment
func (q QuestDefinition) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("quest id is empty")
	}
	if strings.ContainsAny(q.ID, ". /") {
		return fmt.Errorf("quest id %q must not contain dots, slashes or spaces", q.ID)
	}
	if q.Reward < 0 {
		return fmt.Errorf("quest %s: negative reward", q.ID)
	}
	switch q.Type {
	case QuestTypeAds:
		if q.AdLimit <= 0 {
			return fmt.Errorf("quest %s: adLimit must be positive", q.ID)
		}
		if q.AdType == "" || strings.ContainsAny(q.AdType, ". /") {
			return fmt.Errorf("quest %s: invalid adType %q", q.ID, q.AdType)
		}
	case QuestTypeDefault:
	default:
		return fmt.Errorf("quest %s: unknown type %q", q.ID, q.Type)
	}
	return nil
}

// Percent возвращает прогресс в процентах (0-100)
func (p AdProgress) Percent(adLimit int) int {
	if adLimit <= 0 {
		return 100
	}
	progress := (p.Watched * 100) / adLimit
	if progress > 100 {
		return 100
	}
	return progress
}
