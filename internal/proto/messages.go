// Package proto defines the types shared between the core and its
// clients: buffer targets, buffer lines, alerts, and the JSON message
// envelopes exchanged over the client socket.
package proto

// Alert is a user-facing notification. It carries enough addressing
// information for a client to jump to the buffer it came from.
type Alert struct {
	NetworkID string `json:"network_id"`
	Target    Target `json:"target"`
	Message   string `json:"message"`
}

// NetInfo is the summary sent to tell a client about a network.
type NetInfo struct {
	ID        string    `json:"id"`
	Nick      string    `json:"nick"`
	Connected bool      `json:"connected"`
	Buffers   []BufInfo `json:"buffers"`
}

// BufInfo is the summary sent to tell a client about a buffer.
type BufInfo struct {
	Target Target `json:"target"`
	Joined bool   `json:"joined"`
}

// Core→client message types.
const (
	CoreAuthOK     = "auth_ok"
	CoreAuthErr    = "auth_err"
	CoreNetworks   = "networks"
	CoreGlobalBufs = "global_bufs"
	CoreNet        = "net"
	CoreAlerts     = "alerts"
	CoreStatus     = "status"
)

// CoreMsg is a message sent from the core to a client. Type selects
// the variant; exactly the fields for that variant are set.
type CoreMsg struct {
	Type       string      `json:"type"`
	Networks   []NetInfo   `json:"networks,omitempty"`
	GlobalBufs []BufInfo   `json:"global_bufs,omitempty"`
	NetworkID  string      `json:"network_id,omitempty"`
	Net        *CoreNetMsg `json:"net,omitempty"`
	Alerts     []Alert     `json:"alerts,omitempty"`
	Status     string      `json:"status,omitempty"`
}

// Network-scoped core message types.
const (
	NetConnection = "connection"
	NetNickChange = "nick"
	NetBuffers    = "buffers"
	NetBuf        = "buf"
)

// CoreNetMsg is a core message scoped to one network.
type CoreNetMsg struct {
	Type      string      `json:"type"`
	Connected bool        `json:"connected,omitempty"`
	Nick      string      `json:"nick,omitempty"`
	Buffers   []BufInfo   `json:"buffers,omitempty"`
	Target    *Target     `json:"target,omitempty"`
	Buf       *CoreBufMsg `json:"buf,omitempty"`
}

// Buffer-scoped core message types.
const (
	BufState = "state"
	// BufNewLines carries live lines, oldest first.
	BufNewLines = "new_lines"
	// BufScrollback carries historical lines, newest first.
	BufScrollback = "scrollback"
)

// CoreBufMsg is a core message scoped to one buffer.
type CoreBufMsg struct {
	Type   string `json:"type"`
	Joined bool   `json:"joined,omitempty"`
	Lines  []Line `json:"lines,omitempty"`
}

// NewLinesMsg wraps a batch of live lines for a buffer.
func NewLinesMsg(lines ...Line) CoreBufMsg {
	return CoreBufMsg{Type: BufNewLines, Lines: lines}
}

// ScrollbackMsg wraps a batch of historical lines for a buffer.
func ScrollbackMsg(lines []Line) CoreBufMsg {
	return CoreBufMsg{Type: BufScrollback, Lines: lines}
}

// NetMsg wraps a network-scoped message in a core envelope.
func NetMsg(networkID string, msg CoreNetMsg) CoreMsg {
	return CoreMsg{Type: CoreNet, NetworkID: networkID, Net: &msg}
}

// BufMsg wraps a buffer-scoped message in a network envelope.
func BufMsg(target Target, msg CoreBufMsg) CoreNetMsg {
	return CoreNetMsg{Type: NetBuf, Target: &target, Buf: &msg}
}

// StatusMsg builds a status notice for a client, used to surface
// failed requests.
func StatusMsg(text string) CoreMsg {
	return CoreMsg{Type: CoreStatus, Status: text}
}

// Client→core message types.
const (
	ClientAuth           = "auth"
	ClientListNets       = "list_nets"
	ClientListGlobalBufs = "list_global_bufs"
	ClientNet            = "net"
)

// ClientMsg is a message sent from a client to the core.
type ClientMsg struct {
	Type      string        `json:"type"`
	User      string        `json:"user,omitempty"`
	Password  string        `json:"password,omitempty"`
	NetworkID string        `json:"network_id,omitempty"`
	Net       *ClientNetMsg `json:"net,omitempty"`
}

// Network-scoped client message types.
const (
	ClientJoin = "join"
	ClientPart = "part"
	ClientNick = "nick"
	ClientBuf  = "buf"
)

// ClientNetMsg is a client request scoped to one network.
type ClientNetMsg struct {
	Type    string        `json:"type"`
	Channel string        `json:"channel,omitempty"`
	Message string        `json:"message,omitempty"`
	Nick    string        `json:"nick,omitempty"`
	Target  *Target       `json:"target,omitempty"`
	Buf     *ClientBufMsg `json:"buf,omitempty"`
}

// Buffer-scoped client message types.
const (
	ClientSend      = "send"
	ClientFetchLogs = "fetch_logs"
)

// ClientBufMsg is a client request scoped to one buffer.
type ClientBufMsg struct {
	Type  string  `json:"type"`
	Kind  MsgKind `json:"kind,omitempty"`
	Body  string  `json:"body,omitempty"`
	Count int     `json:"count,omitempty"`
}
