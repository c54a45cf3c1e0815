// Package shoutcast provides ICY/Shoutcast stream reading with metadata stripping and playlist resolution.
//
// It is a fork of github.com/romantomjak/shoutcast, extended for now-playing tracking:
//   - Playlist resolution: .pls and .m3u URLs are resolved to the actual stream URL
//   - Correct metadata stripping: ICY metadata blocks are read and skipped so only audio bytes are returned
//   - StreamTitle and StreamUrl are both reported to the metadata callback
//   - Streams without icy-metaint are passed through untouched
//   - Connections are bound to a context so a player can abandon them
package shoutcast
