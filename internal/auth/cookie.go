package auth

import (
	"net/http"
	"time"
)

// CookieOptions controls the attributes of cookies written by this package.
type CookieOptions struct {
	Name   string
	Secure bool
}

// SetCookie writes an HttpOnly, SameSite=Lax cookie expiring at expiresAt.
func SetCookie(w http.ResponseWriter, opts CookieOptions, value string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the named cookie on the client.
func ClearCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
