package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const maxProfileBytes = 1 << 20 // 1 MB

// @Summary      Get profile
// @Description  Dashboards, devices and widgets of the caller, including live device status.
// @Tags         profile
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "dashboards"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/profile [get]
// @Security     BearerAuth
func (h *Handler) getProfile(c *gin.Context) {
	uid, _ := userID(c)
	p, err := h.services.Profiles.Get(c.Request.Context(), uid)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load profile", "profile_get_failed", err, "user_id", uid)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Replace profile
// @Description  Replaces all dashboards. Known devices keep their status and processor state; devices without a token get one.
// @Tags         profile
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "dashboards"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/profile [put]
// @Security     BearerAuth
func (h *Handler) updateProfile(c *gin.Context) {
	uid, _ := userID(c)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProfileBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	p, err := h.services.Profiles.Update(c.Request.Context(), uid, body)
	if err != nil {
		code := statusFor(err)
		h.logAndJSONError(c, code, errorText(code, err, "failed to save profile"), "profile_update_failed", err, "user_id", uid)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Device status
// @Tags         profile
// @Produce      json
// @Param        dashId    path  int  true  "Dashboard id"
// @Param        deviceId  path  int  true  "Device id"
// @Success      200  {object}  models.DeviceState
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/dashboards/{dashId}/devices/{deviceId}/status [get]
// @Security     BearerAuth
func (h *Handler) getDeviceStatus(c *gin.Context) {
	uid, _ := userID(c)
	dashID, err1 := strconv.Atoi(c.Param("dashId"))
	deviceID, err2 := strconv.Atoi(c.Param("deviceId"))
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dashboard or device id"})
		return
	}

	st, err := h.services.Profiles.DeviceState(c.Request.Context(), uid, dashID, deviceID)
	if err != nil {
		code := statusFor(err)
		h.logAndJSONError(c, code, errorText(code, err, "failed to load device"), "device_status_failed", err,
			"user_id", uid, "dash_id", dashID, "device_id", deviceID)
		return
	}
	c.JSON(http.StatusOK, st)
}
