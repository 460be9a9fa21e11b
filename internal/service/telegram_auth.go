package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const initDataMaxAge = time.Hour

// WebAppSecret derives the init_data signing key: HMAC_SHA256("WebAppData", botToken)
func WebAppSecret(botToken string) []byte {
	h := hmac.New(sha256.New, []byte("WebAppData"))
	h.Write([]byte(botToken))
	return h.Sum(nil)
}

func dataCheckString(values url.Values) string {
	var dataCheck []string
	for k, v := range values {
		if k == "hash" {
			continue
		}
		dataCheck = append(dataCheck, k+"="+strings.Join(v, ""))
	}
	sort.Strings(dataCheck)
	return strings.Join(dataCheck, "\n")
}

// SignInitData builds a signed init_data string, used by dev tools and tests
func SignInitData(botToken string, fields url.Values) string {
	h := hmac.New(sha256.New, WebAppSecret(botToken))
	h.Write([]byte(dataCheckString(fields)))

	out := url.Values{}
	for k, v := range fields {
		out[k] = append([]string(nil), v...)
	}
	out.Set("hash", hex.EncodeToString(h.Sum(nil)))
	return out.Encode()
}

// ValidateTelegramInitData verifies Telegram WebApp init_data HMAC and checks
// that the auth_date is recent (within 1 hour) to mitigate replay attacks.
func ValidateTelegramInitData(initData, botToken string) (url.Values, bool) {
	return ValidateTelegramInitDataAt(initData, botToken, time.Now())
}

func ValidateTelegramInitDataAt(initData, botToken string, now time.Time) (url.Values, bool) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, false
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, false
	}
	values.Del("hash")

	h := hmac.New(sha256.New, WebAppSecret(botToken))
	h.Write([]byte(dataCheckString(values)))

	provided, err := hex.DecodeString(hash)
	if err != nil {
		return nil, false
	}
	if !hmac.Equal(h.Sum(nil), provided) {
		return nil, false
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, false
	}
	// allow small clock skew, but reject anything older than 1 hour
	age := now.Unix() - authDate
	if age > int64(initDataMaxAge.Seconds()) || age < -300 {
		return nil, false
	}

	return values, true
}
