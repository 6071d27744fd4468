// Package chat connects the bot to Twitch IRC and routes channel messages.
//
// Every PRIVMSG goes through a Router, which:
//   - scans the text for LeetCode submission links while the stream is live and
//     hands them to the recap collector;
//   - dispatches "!" commands (!lt, !ltlockin, !problem, !daily, !discord,
//     !commands). Timer commands require the broadcaster, moderator or VIP badge.
//
// Announcements from other components (ad scheduler, timers) go out through
// Bot.Say, which implements the Announcer interfaces those packages declare.
package chat
