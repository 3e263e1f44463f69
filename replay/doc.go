// Package replay reconstructs the conversation of a recorded train dialog.
//
// Engine.GetHistory walks the rounds of a core.TrainDialog, emitting a user
// activity per round and a bot activity per labeled scorer step. With
// HistoryOptions.UpdateState the entity memory of the target scope is
// rebuilt round by round through the same entity detection path as live
// traffic, and the live state is compared with the state recorded when the
// dialog was labeled. The first divergence ends the replay and is reported
// as human readable discrepancy lines.
//
// Activity ids are name based UUIDs derived from the dialog id and the
// position of the activity, so replaying the same dialog twice yields the
// same activities.
package replay
