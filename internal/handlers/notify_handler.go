package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rent_notifications/internal/service"

	"go.uber.org/zap"
)

// DispatchRunner is the slice of the service layer the handlers need.
type DispatchRunner interface {
	RunRentDue(ctx context.Context) (*service.RunSummary, error)
	RunContractExpiry(ctx context.Context, thresholdDays int) (*service.RunSummary, error)
}

type ReminderRunner interface {
	Run(ctx context.Context) []service.ReminderResult
}

type NotifyHandler struct {
	dispatcher        DispatchRunner
	reminders         ReminderRunner
	defaultExpiryDays int
	logger            *zap.Logger
}

func NewNotifyHandler(dispatcher DispatchRunner, reminders ReminderRunner, defaultExpiryDays int, logger *zap.Logger) *NotifyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultExpiryDays <= 0 {
		defaultExpiryDays = 30
	}
	return &NotifyHandler{
		dispatcher:        dispatcher,
		reminders:         reminders,
		defaultExpiryDays: defaultExpiryDays,
		logger:            logger,
	}
}

// GET /api/notifications/rent-due
// 200: aggregate counts; per-recipient failures are visible only in the
//      counts and the audit log, never as a failed response.
// 500: the due-set query itself failed; nothing was sent or logged.
func (h *NotifyHandler) RentDue(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dispatcher.RunRentDue(r.Context())
	if err != nil {
		h.logger.Error("rent-due run aborted", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Failed to fetch properties",
			"details": err.Error(),
		})
		return
	}

	msg := "SMS notifications sent"
	if summary.PropertiesFound == 0 {
		msg = "No properties due today"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":                      true,
		"message":                      msg,
		"propertiesFound":              summary.PropertiesFound,
		"tenantsSent":                  summary.TenantsSent,
		"ownersSent":                   summary.OwnersSent,
		"ownersWithMultipleProperties": summary.OwnersWithMultipleProperties,
	})
}

// GET /api/notifications/contracts-expiring?days=N
func (h *NotifyHandler) ContractsExpiring(w http.ResponseWriter, r *http.Request) {
	days := h.defaultExpiryDays
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	summary, err := h.dispatcher.RunContractExpiry(r.Context(), days)
	if err != nil {
		h.logger.Error("contracts-expiring run aborted", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Failed to fetch contracts",
			"details": err.Error(),
		})
		return
	}

	msg := "SMS notifications sent"
	if summary.PropertiesFound == 0 {
		msg = "No contracts expiring soon"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":                      true,
		"message":                      msg,
		"contractsFound":               summary.PropertiesFound,
		"tenantsSent":                  summary.TenantsSent,
		"ownersSent":                   summary.OwnersSent,
		"ownersWithMultipleProperties": summary.OwnersWithMultipleProperties,
	})
}

// GET /api/notifications/reminders
func (h *NotifyHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	results := h.reminders.Run(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"notifications": results,
		"message":       strconv.Itoa(len(results)) + " notification types sent",
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
