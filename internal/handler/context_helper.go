package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/circle-calendar-api/internal/middleware"
	"github.com/noah-isme/circle-calendar-api/internal/models"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
)

const dateLayout = "2006-01-02"

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func displayName(claims *models.JWTClaims) string {
	switch {
	case claims.DisplayName != "":
		return claims.DisplayName
	case claims.Email != "":
		return claims.Email
	default:
		return claims.Actor()
	}
}

// parseWindow resolves a day-granular window. A missing start means the
// current month; a missing end means the end of start's month. The end day
// is inclusive.
func parseWindow(rawStart, rawEnd string, now time.Time) (time.Time, time.Time, error) {
	var start time.Time
	if strings.TrimSpace(rawStart) == "" {
		y, m, _ := now.UTC().Date()
		start = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := parseBound(rawStart)
		if err != nil {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid start, expected YYYY-MM-DD")
		}
		start = parsed
	}

	var end time.Time
	if strings.TrimSpace(rawEnd) == "" {
		end = time.Date(start.Year(), start.Month()+1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	} else {
		parsed, err := time.Parse(dateLayout, strings.TrimSpace(rawEnd))
		if err == nil {
			end = parsed.Add(24*time.Hour - time.Nanosecond)
		} else if end, err = time.Parse(time.RFC3339, strings.TrimSpace(rawEnd)); err != nil {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid end, expected YYYY-MM-DD")
		}
	}
	return start, end.UTC(), nil
}

func parseBound(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}
