package handlers

import (
	"net/http"

	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/ledger"

	"github.com/gin-gonic/gin"
)

// QuestWithProgress - квест с прогрессом пользователя
type QuestWithProgress struct {
	Quest            domain.QuestDefinition `json:"quest"`
	Status           ledger.QuestStatus     `json:"status"`
	RemainingSeconds int                    `json:"remaining_seconds,omitempty"`
	Watched          int                    `json:"watched"`
	Claimed          bool                   `json:"claimed"`
}

// GetQuests возвращает каталог квестов со статусом для текущего пользователя
func (h *Handler) GetQuests(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	views, err := s.QuestStates(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	result := make([]QuestWithProgress, 0, len(views))
	for _, v := range views {
		result = append(result, QuestWithProgress{
			Quest:            v.Quest,
			Status:           v.State.Status,
			RemainingSeconds: int(v.State.Remaining.Seconds() + 0.999),
			Watched:          v.Progress.Watched,
			Claimed:          v.State.Status == ledger.QuestClaimed,
		})
	}
	c.JSON(http.StatusOK, gin.H{"quests": result})
}

func (h *Handler) quest(c *gin.Context) (domain.QuestDefinition, bool) {
	q, ok := h.Engine.Catalog().Quest(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "quest not found", "reason": ledger.ReasonInvalidQuest})
	}
	return q, ok
}

// ClaimQuestReward забирает награду за выполненный квест
func (h *Handler) ClaimQuestReward(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	q, ok := h.quest(c)
	if !ok {
		return
	}

	res, err := s.ClaimQuestReward(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// WatchAd plays one ad for the quest; blocks until the client reports the result
func (h *Handler) WatchAd(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	q, ok := h.quest(c)
	if !ok {
		return
	}

	res, err := s.WatchAdForQuest(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
