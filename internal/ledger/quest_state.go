package ledger

import (
	"time"

	"rewards_webapp/internal/domain"
)

// QuestStatus is the display state of one quest
type QuestStatus string

const (
	QuestLocked       QuestStatus = "locked"
	QuestReadyToAct   QuestStatus = "ready_to_act"
	QuestCoolingDown  QuestStatus = "cooling_down"
	QuestReadyToClaim QuestStatus = "ready_to_claim"
	QuestClaimed      QuestStatus = "claimed"
)

// QuestState is the result of EvaluateQuestState. ResetDue asks the engine
// to run ResetQuestProgress before showing the quest again.
type QuestState struct {
	Status    QuestStatus
	Remaining time.Duration
	ResetDue  bool
}

// EvaluateQuestState is pure: no I/O, only the ledger snapshot and now
func EvaluateQuestState(q domain.QuestDefinition, l *domain.LedgerDocument, now time.Time, rules Rules) QuestState {
	if !q.IsAdQuest() {
		if l.HasClaimed(q.ID) {
			return QuestState{Status: QuestClaimed}
		}
		return QuestState{Status: QuestReadyToAct}
	}

	if q.AdType == rules.AutomaticAdType {
		return QuestState{Status: QuestLocked}
	}

	p := l.Progress(q.ID)
	if p.Claimed {
		if p.LastClaimed != nil {
			if elapsed := now.Sub(*p.LastClaimed); elapsed < rules.QuestRepeatCooldown {
				return QuestState{Status: QuestClaimed, Remaining: rules.QuestRepeatCooldown - elapsed}
			}
		}
		// кулдаун прошёл (или lastClaimed потерян) -> сброс
		return QuestState{Status: QuestClaimed, ResetDue: true}
	}

	if p.Watched >= q.AdLimit {
		return QuestState{Status: QuestReadyToClaim}
	}

	if rem := AdCooldownRemaining(l, q.AdType, now, rules); rem > 0 {
		return QuestState{Status: QuestCoolingDown, Remaining: rem}
	}
	return QuestState{Status: QuestReadyToAct}
}

// AdCooldownRemaining returns how long the ad type stays blocked, zero if free
func AdCooldownRemaining(l *domain.LedgerDocument, adType string, now time.Time, rules Rules) time.Duration {
	last, ok := l.LastAdWatch(adType)
	if !ok {
		return 0
	}
	if elapsed := now.Sub(last); elapsed < rules.AdTypeCooldown {
		return rules.AdTypeCooldown - elapsed
	}
	return 0
}

func resetDue(p domain.AdProgress, now time.Time, rules Rules) bool {
	if !p.Claimed {
		return false
	}
	return p.LastClaimed == nil || now.Sub(*p.LastClaimed) >= rules.QuestRepeatCooldown
}
