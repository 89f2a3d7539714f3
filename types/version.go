package types

// Version is the canonical project version.
// The CLI, the frame format and the archive layout share this version.
const Version = "0.4.2"

// FrameVersion is the version stamped into msgpack record frames.
// It moves in lockstep with Version.
const FrameVersion = Version
