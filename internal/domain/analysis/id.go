package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID generates a record id: time-ordered prefix plus a random suffix so
// concurrent requests in the same millisecond never collide. The id is the
// sole lookup key in the store.
func NewID(kind Kind) ID {
	prefix := "an"
	switch kind {
	case KindMarketSize:
		prefix = "ms"
	case KindProblemDefinition:
		prefix = "pd"
	case KindCompetitorResearch:
		prefix = "comp"
	}
	suffix := strings.Split(uuid.New().String(), "-")[0]
	return ID(fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), suffix))
}
