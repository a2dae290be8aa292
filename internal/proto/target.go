package proto

// TargetKind discriminates the kinds of conversation buffer a network
// can own.
type TargetKind string

const (
	// TargetChannel is an IRC channel buffer.
	TargetChannel TargetKind = "channel"
	// TargetPrivate is a private conversation buffer with another user.
	TargetPrivate TargetKind = "private"
	// TargetNetwork is the network's own status buffer.
	TargetNetwork TargetKind = "network"
)

// NetworkBufferName is the display name used for a network's status
// buffer, which has no name of its own.
const NetworkBufferName = "*network*"

// Target identifies a buffer within a network. It is comparable and is
// used as a map key throughout the core.
type Target struct {
	Kind TargetKind `json:"kind"`
	Name string     `json:"name,omitempty"`
}

// ChannelTarget returns the target for the named channel buffer.
func ChannelTarget(name string) Target {
	return Target{Kind: TargetChannel, Name: name}
}

// PrivateTarget returns the target for a private conversation with the
// given nick.
func PrivateTarget(nick string) Target {
	return Target{Kind: TargetPrivate, Name: nick}
}

// NetworkTarget returns the target for the network's status buffer.
func NetworkTarget() Target {
	return Target{Kind: TargetNetwork}
}

// DisplayName returns the name shown to users for this target.
func (t Target) DisplayName() string {
	if t.Kind == TargetNetwork {
		return NetworkBufferName
	}
	return t.Name
}

// DirName returns the name used for this target's log directory.
// Network buffers log under a fixed reserved name.
func (t Target) DirName() string {
	if t.Kind == TargetNetwork {
		return "network"
	}
	return t.Name
}
