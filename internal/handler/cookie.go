package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-portal/internal/config"
)

// CookieConfig controls the session cookie attributes.
type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
	MaxAge time.Duration
}

// CookieConfigFrom extracts the cookie settings from the application config.
// The cookie outlives the session by the submit grace window.
func CookieConfigFrom(cfg *config.Config) CookieConfig {
	return CookieConfig{
		Name:   cfg.SessionCookieName,
		Domain: cfg.SessionCookieDomain,
		Secure: cfg.SecureCookies(),
		MaxAge: cfg.SessionDuration + cfg.SubmitGrace,
	}
}

func (cc CookieConfig) set(c *gin.Context, value string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cc.Name,
		Value:    value,
		Path:     "/",
		Domain:   cc.Domain,
		MaxAge:   int(cc.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (cc CookieConfig) clear(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cc.Name,
		Value:    "",
		Path:     "/",
		Domain:   cc.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// HeaderDeviceID lets a client name its own device.
const HeaderDeviceID = "X-Device-ID"

const maxDeviceIDLen = 128

// deviceID identifies the requesting device: the client-supplied header when
// present, otherwise a stable name-based UUID of user agent and address.
func deviceID(c *gin.Context) string {
	if id := c.GetHeader(HeaderDeviceID); id != "" && len(id) <= maxDeviceIDLen {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(c.Request.UserAgent()+"|"+c.ClientIP())).String()
}
