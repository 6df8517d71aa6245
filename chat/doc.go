// Package chat contains the live chat narrator loop and its chat sources.
//
// It provides two entrypoints:
//   - StartNarratorJob: resolves the active live chat for VIDEO_ID, then
//     polls it page by page, pushes each batch through the deduplicating
//     sequencer, and hands new messages to the narrator in publish order,
//     persisting a transcript into the messages table.
//   - StartTwitchChatSource: connects to Twitch IRC for TWITCH_CHANNEL and
//     forwards its messages into the same pipeline as an optional secondary
//     source. IRC messages are buffered on a channel and merged into the next
//     poll cycle's batch, so the narrator loop stays the only owner of the
//     sequencer.
//
// Narration is synchronous: each message's speech finishes before the next
// begins, so audio is never reordered or overlapped even when a poll returns
// a large backlog.
package chat
