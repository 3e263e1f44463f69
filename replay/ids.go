package replay

import (
	"strconv"

	"github.com/google/uuid"
)

// activityNamespace scopes the name based UUIDs of replayed activities.
var activityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/hupe1980/dialogmesh/replay"))

// activityID derives a stable id from the dialog and the activity position.
func activityID(dialogID string, round, score int, kind string) string {
	name := dialogID + "/" + strconv.Itoa(round) + "/" + strconv.Itoa(score) + "/" + kind
	return uuid.NewSHA1(activityNamespace, []byte(name)).String()
}
