package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"telemetry_relay/internal/pin"
	"telemetry_relay/internal/repository"
	"telemetry_relay/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errFromInvalid = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid   = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

// isDateOnly reports whether the query string represents a date without time component.
func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

// parseRange reads the optional from/to query params. A date-only 'to' covers the whole day.
// It writes a 400 and returns false on bad input.
func parseRange(c *gin.Context) (from, to time.Time, ok bool) {
	var err error
	if qs := c.Query("from"); qs != "" {
		from, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errFromInvalid})
			return from, to, false
		}
	}
	if qs := c.Query("to"); qs != "" {
		to, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errToInvalid})
			return from, to, false
		}
		if isDateOnly(qs) {
			to = to.Add(24*time.Hour - time.Nanosecond).UTC()
		}
	}
	return from, to, true
}

// queryInt parses an optional integer query param. It writes a 400 and returns false on bad input.
func queryInt(c *gin.Context, name string) (int, bool, bool) {
	qs := c.Query(name)
	if qs == "" {
		return 0, false, true
	}
	v, err := strconv.Atoi(qs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid '%s'", name)})
		return 0, false, false
	}
	return v, true, true
}

// @Summary      List device events
// @Description  Connectivity and plugin events of the caller's devices. 'to' given as a date covers the whole day.
// @Tags         logs
// @Produce      json
// @Param        from       query   string  false  "Start of range (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD')"  example(2025-08-01)
// @Param        to         query   string  false  "End of range. Date-only treated as end of day."  example(2025-08-31)
// @Param        type       query   string  false  "Event type"  Enums(ONLINE,OFFLINE,PUSH,PLUGIN_ERROR)
// @Param        device_id  query   int     false  "Device id"
// @Success      200   {object}  map[string]interface{}  "count, events"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/events [get]
// @Security     BearerAuth
func (h *Handler) getEvents(c *gin.Context) {
	uid, _ := userID(c)
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	deviceID, hasDevice, ok := queryInt(c, "device_id")
	if !ok {
		return
	}

	f := service.LogFilter{From: from, To: to, Type: c.Query("type")}
	if hasDevice {
		f.DeviceID = &deviceID
	}
	events, err := h.services.EventLog.List(c.Request.Context(), uid, f)
	if err != nil {
		code := statusFor(err)
		h.logAndJSONError(c, code, errorText(code, err, "failed to load events"), "events_list_failed", err, "user_id", uid)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// @Summary      Pin history
// @Description  Reported values of one pin, newest first.
// @Tags         logs
// @Produce      json
// @Param        dash_id    query   int     true   "Dashboard id"
// @Param        device_id  query   int     true   "Device id"
// @Param        pin_type   query   string  true   "Pin type"  Enums(VIRTUAL,DIGITAL,ANALOG)
// @Param        pin        query   int     true   "Pin number"
// @Param        from       query   string  false  "Start of range"
// @Param        to         query   string  false  "End of range"
// @Param        limit      query   int     false  "Max rows"
// @Success      200   {object}  map[string]interface{}  "count, readings"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/readings [get]
// @Security     BearerAuth
func (h *Handler) getReadings(c *gin.Context) {
	uid, _ := userID(c)
	from, to, ok := parseRange(c)
	if !ok {
		return
	}

	f := repository.ReadingFilter{UserID: uid, From: from, To: to}
	var pinType pin.Type
	if err := pinType.UnmarshalText([]byte(c.Query("pin_type"))); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'pin_type'"})
		return
	}
	f.PinType = pinType

	for _, p := range []struct {
		name string
		dst  *int
	}{{"dash_id", &f.DashID}, {"device_id", &f.DeviceID}, {"pin", &f.Pin}} {
		v, present, ok := queryInt(c, p.name)
		if !ok {
			return
		}
		if !present {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("missing '%s'", p.name)})
			return
		}
		*p.dst = v
	}
	limit, _, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	f.Limit = limit

	readings, err := h.services.Readings.History(c.Request.Context(), f)
	if err != nil {
		code := statusFor(err)
		h.logAndJSONError(c, code, errorText(code, err, "failed to load readings"), "readings_list_failed", err, "user_id", uid)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(readings),
		"readings": readings,
	})
}

// errorText hides internal error details behind fallback.
func errorText(code int, err error, fallback string) string {
	if code >= http.StatusInternalServerError {
		return fallback
	}
	return err.Error()
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf(
		"invalid time format %q, expected one of: "+
			"RFC3339 (e.g. 2025-08-27T15:04:05Z), "+
			"'YYYY-MM-DD HH:MM:SS', "+
			"'YYYY-MM-DD'",
		s,
	)
}
