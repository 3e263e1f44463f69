package replay

import (
	"fmt"

	"github.com/hupe1980/dialogmesh/core"
)

// Discrepancies compares the entity state recorded for a round with the
// live state. It returns nil when they match and report lines otherwise.
//
// The states match when they hold the same number of entities, every
// recorded entity is live with the same number of values, and every
// recorded value text is among the live values.
func Discrepancies(recorded []core.FilledEntity, live core.FilledEntityMap, defs core.Definitions) []string {
	liveEntities := live.FilledEntities()
	if sameEntities(recorded, liveEntities) {
		return nil
	}

	lines := []string{"Original Entities:"}
	for _, fe := range recorded {
		lines = append(lines, fmt.Sprintf("%s = (%s)", defs.EntityName(fe.EntityID), fe.ValueAsString()))
	}
	lines = append(lines, "", "New Entities:")
	for _, name := range live.Names() {
		lines = append(lines, fmt.Sprintf("%s = (%s)", name, live[name].ValueAsString()))
	}
	return lines
}

func sameEntities(recorded, live []core.FilledEntity) bool {
	if len(recorded) != len(live) {
		return false
	}
	for _, old := range recorded {
		cur, ok := findEntity(live, old.EntityID)
		if !ok || len(old.Values) != len(cur.Values) {
			return false
		}
		for _, v := range old.Values {
			if !hasUserText(cur.Values, v.UserText) {
				return false
			}
		}
	}
	return true
}

func findEntity(entities []core.FilledEntity, id string) (core.FilledEntity, bool) {
	for _, fe := range entities {
		if fe.EntityID == id {
			return fe, true
		}
	}
	return core.FilledEntity{}, false
}

func hasUserText(values []core.MemoryValue, text string) bool {
	for _, v := range values {
		if v.UserText == text {
			return true
		}
	}
	return false
}
