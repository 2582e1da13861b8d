package handlers

import (
	"net/http"

	"github.com/studywise/backend/internal/auth"
	"github.com/studywise/backend/internal/quota"
)

type UsageHandler struct {
	policy *quota.Policy
}

func NewUsageHandler(p *quota.Policy) *UsageHandler {
	return &UsageHandler{policy: p}
}

type usageResponse struct {
	Tier          string `json:"tier"`
	DocumentsUsed int    `json:"documents_used"`
	DocumentsMax  int    `json:"documents_max"`
	MessagesUsed  int    `json:"messages_used"`
	MessagesMax   int    `json:"messages_max"`
}

// Get reports the caller's counters against their tier limits.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	limits, err := h.policy.LimitsFor(user.Tier)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, usageResponse{
		Tier:          string(user.Tier),
		DocumentsUsed: user.DocumentsUsed,
		DocumentsMax:  limits.MaxDocuments,
		MessagesUsed:  user.MessagesUsed,
		MessagesMax:   limits.MaxMessages,
	})
}
