// Package buffer implements conversation buffers: the in-memory line
// history of one channel, private conversation, or network status
// stream, backed by an on-disk day-bucketed log store.
package buffer

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/matt0x6f/ircquill/internal/logger"
	"github.com/matt0x6f/ircquill/internal/proto"
	"github.com/matt0x6f/ircquill/internal/update"
)

// Buffer is one conversation surface within a network.
//
// Lines are addressed by index: index 0 is the oldest line received
// this session ("front", held entirely in memory), growing upward as
// lines arrive; index -1 is the newest historical line ("back", paged
// in from the log store on demand), growing downward without bound as
// more history is loaded.
type Buffer struct {
	networkID string
	target    proto.Target
	nextID    int64
	topic     string
	front     []proto.Line
	// Back log lines, newest first. back[0] is index -1.
	back       []proto.Line
	joined     bool
	users      map[string]struct{}
	namesEnded bool
	log        *LogStore
}

// New creates a buffer whose logs live under
// <logRoot>/<networkID>/<target dir name>. One day of history is
// paged in immediately so reconstructed buffers resume their
// scrollback where the previous run left off.
func New(networkID string, target proto.Target, logRoot string) *Buffer {
	log := NewLogStore(filepath.Join(logRoot, networkID, target.DirName()))
	return &Buffer{
		networkID:  networkID,
		target:     target,
		back:       log.FetchNextDay(),
		users:      make(map[string]struct{}),
		namesEnded: true,
		log:        log,
	}
}

// Target returns the buffer's identifier within its network.
func (b *Buffer) Target() proto.Target {
	return b.target
}

// Joined reports channel membership (or peer presence, for private
// buffers).
func (b *Buffer) Joined() bool {
	return b.joined
}

// Topic returns the buffer's current topic.
func (b *Buffer) Topic() string {
	return b.topic
}

// SetTopic records a topic change without emitting a line.
func (b *Buffer) SetTopic(topic string) {
	b.topic = topic
}

// Info returns the summary clients are told about this buffer.
func (b *Buffer) Info() proto.BufInfo {
	return proto.BufInfo{Target: b.target, Joined: b.joined}
}

// FrontLen returns the number of live lines, which is also the index
// one past the most recently received line.
func (b *Buffer) FrontLen() int {
	return len(b.front)
}

// LastIndex returns the index of the oldest loaded line: 0 when no
// history has been paged in, otherwise the negative count of loaded
// back lines. Requests below this boundary trigger a disk fetch.
func (b *Buffer) LastIndex() int {
	if len(b.back) == 0 {
		return 0
	}
	return -len(b.back)
}

// PushLine assigns the next sequence id, timestamps the payload,
// appends it to the front log, persists it, and emits a new-lines
// event through u.
func (b *Buffer) PushLine(data proto.LineData, u update.Handle[proto.CoreBufMsg]) proto.Line {
	line := proto.Line{
		ID:   b.nextID,
		Time: time.Now(),
		Data: data,
	}
	b.nextID++
	logger.Log.Trace().
		Str("buffer", b.target.DisplayName()).
		Int64("id", line.ID).
		Msg("Pushing line")
	b.front = append(b.front, line)
	b.log.Append([]proto.Line{line})
	u.SendToClients(proto.NewLinesMsg(line))
	return line
}

// GetLine resolves a line by index, paging history in from the log
// store as needed. The second return value is false when the index is
// not resolvable: either beyond the newest line or older than any
// reachable history.
func (b *Buffer) GetLine(index int) (proto.Line, bool) {
	for index < b.LastIndex() {
		lines := b.log.FetchNextDay()
		if len(lines) == 0 {
			break
		}
		b.back = append(b.back, lines...)
	}
	if index >= 0 {
		if index >= len(b.front) {
			return proto.Line{}, false
		}
		return b.front[index], true
	}
	pos := -index - 1
	if pos >= len(b.back) {
		return proto.Line{}, false
	}
	return b.back[pos], true
}

// SetJoined flips membership state and emits a state-change event.
func (b *Buffer) SetJoined(joined bool, u update.Handle[proto.CoreBufMsg]) {
	b.joined = joined
	u.SendToClients(proto.CoreBufMsg{Type: proto.BufState, Joined: joined})
}

// HasUser reports whether the given nick is present in this buffer.
func (b *Buffer) HasUser(nick string) bool {
	_, ok := b.users[nick]
	return ok
}

// AddUser records a nick as present.
func (b *Buffer) AddUser(nick string) {
	b.users[nick] = struct{}{}
}

// RemoveUser removes a nick from the presence set.
func (b *Buffer) RemoveUser(nick string) {
	delete(b.users, nick)
}

// ClearUsers empties the presence set.
func (b *Buffer) ClearUsers() {
	b.users = make(map[string]struct{})
}

// RenameUser moves presence from one nick to another.
func (b *Buffer) RenameUser(oldNick, newNick string) {
	if _, ok := b.users[oldNick]; ok {
		delete(b.users, oldNick)
		b.users[newNick] = struct{}{}
	}
}

// Users returns a snapshot of the present nicks.
func (b *Buffer) Users() []string {
	users := make([]string, 0, len(b.users))
	for nick := range b.users {
		users = append(users, nick)
	}
	return users
}

// HandleNames merges one RPL_NAMREPLY body into the presence set. The
// first reply after an end-of-names clears the set first; replies
// before the terminator accumulate.
func (b *Buffer) HandleNames(body string) {
	if b.namesEnded {
		b.namesEnded = false
		b.ClearUsers()
	}
	for _, name := range strings.Fields(body) {
		// Strip status prefixes: @ op, + voice, % halfop, & admin, ~ owner.
		nick := strings.TrimLeft(name, "@+%&~")
		if nick != "" {
			b.AddUser(nick)
		}
	}
	logger.Log.Debug().
		Str("buffer", b.target.DisplayName()).
		Int("users", len(b.users)).
		Msg("User list updated")
}

// EndNames marks the current NAMES reply sequence as finished.
func (b *Buffer) EndNames() {
	b.namesEnded = true
}
