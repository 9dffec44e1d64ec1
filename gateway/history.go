package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lingo-dm/auth"
	"lingo-dm/domain"
	"lingo-dm/services"
)

// HistoryHandler serves paginated conversation history. Pagination is
// cursor based: `before` is the createdAt of the oldest message the
// client already holds, and an empty page means no earlier messages.
type HistoryHandler struct {
	log  *slog.Logger
	chat services.IChatService
}

func NewHistoryHandler(log *slog.Logger, chat services.IChatService) *HistoryHandler {
	return &HistoryHandler{log: log, chat: chat}
}

// GET /api/chat/{peerID}/messages?limit=&before=
func (h *HistoryHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	peerID := chi.URLParam(r, "peerID")
	if peerID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	before, _ := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)

	messages, err := h.chat.History(r.Context(), domain.HistoryQuery{
		UserID: userID,
		PeerID: peerID,
		Limit:  limit,
		Before: before,
	})
	if err != nil {
		h.log.Error("history query failed", "user_id", userID, "peer_id", peerID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(messages); err != nil {
		h.log.Error("history encode failed", "error", err)
	}
}
