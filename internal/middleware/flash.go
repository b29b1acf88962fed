package middleware

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// FlashCookieName holds one-shot user messages between a redirect and the next page.
const FlashCookieName = "bp_flash"

// SetFlash queues messages for the next rendered page.
func SetFlash(w http.ResponseWriter, messages ...string) {
	if len(messages) == 0 {
		return
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(payload),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlash returns the queued messages and clears them.
func PopFlash(w http.ResponseWriter, r *http.Request) []string {
	cookie, err := r.Cookie(FlashCookieName)
	if err != nil {
		return nil
	}

	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	var messages []string
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil
	}
	return messages
}
