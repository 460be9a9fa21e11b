package telegram

import (
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"time"

	"rewards_webapp/internal/service"
)

var (
	ErrInvalidInitData = errors.New("invalid or stale telegram data")
	ErrNoUser          = errors.New("user not found")
)

type WebAppUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	PhotoURL  string `json:"photo_url"`
}

// DisplayName prefers the @username, then the first name
func (u WebAppUser) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// InitData is the validated part of Telegram.WebApp.initData we use
type InitData struct {
	User       WebAppUser
	StartParam string
}

func (d InitData) UserID() string { return strconv.FormatInt(d.User.ID, 10) }

// Authenticate validates init_data against the bot token and extracts the user
func Authenticate(initData, botToken string, now time.Time) (*InitData, error) {
	values, ok := service.ValidateTelegramInitDataAt(initData, botToken, now)
	if !ok {
		return nil, ErrInvalidInitData
	}
	return parse(values)
}

// ParseUnverified skips the signature check, DEV_MODE only
func ParseUnverified(initData string) (*InitData, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, err
	}
	return parse(values)
}

func parse(values url.Values) (*InitData, error) {
	raw := values.Get("user")
	if raw == "" {
		return nil, ErrNoUser
	}
	var d InitData
	if err := json.Unmarshal([]byte(raw), &d.User); err != nil {
		return nil, err
	}
	if d.User.ID == 0 {
		return nil, ErrNoUser
	}
	d.StartParam = values.Get("start_param")
	return &d, nil
}
