package queue

import "clinicq/ticket-service/internal/models"

// transitionTable maps a status to the statuses it may move to. COMPLETED,
// NO_SHOW, and CANCELLED are terminal; nothing ever returns to WAITING.
var transitionTable = map[string][]string{
	models.StatusWaiting:   {models.StatusCalled, models.StatusCancelled},
	models.StatusCalled:    {models.StatusInService, models.StatusNoShow, models.StatusCancelled},
	models.StatusInService: {models.StatusCompleted},
}

func CanTransition(from, to string) bool {
	for _, allowed := range transitionTable[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
