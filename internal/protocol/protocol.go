// Package protocol implements the versioned command envelope exchanged
// over the daemon's local command socket: a stream of concatenated JSON
// objects, each carrying a version number and a flattened command body.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// CurrentVersion is the protocol version this build speaks. A command
// envelope carrying a different version is rejected with ErrVersionMismatch
// rather than silently misinterpreted.
const CurrentVersion uint32 = 1

// ErrVersionMismatch is returned when an envelope's version field does not
// match CurrentVersion.
var ErrVersionMismatch = errors.New("protocol: command version mismatch")

// ErrCommandNotImplemented is returned by daemon dispatch for a command
// that parses successfully but has no handler wired yet (SyncSingle).
var ErrCommandNotImplemented = errors.New("protocol: command not implemented")

// Kind identifies which command variant an envelope carries.
type Kind int

const (
	KindDoSync Kind = iota
	KindReloadConfig
	// KindSyncSingle is reserved per spec.md §9's open question: the
	// command parses but the daemon dispatcher returns
	// ErrCommandNotImplemented for it rather than wiring it through.
	KindSyncSingle
)

func (k Kind) String() string {
	switch k {
	case KindDoSync:
		return "do_sync"
	case KindReloadConfig:
		return "reload_config"
	case KindSyncSingle:
		return "sync_single"
	default:
		return "unknown"
	}
}

// Command is a parsed command envelope: its declared version and its
// flattened body. Path is only meaningful for KindSyncSingle.
type Command struct {
	Version uint32
	Kind    Kind
	Path    string
}

// wireEnvelope mirrors the wire shape: version plus a flattened "command"
// discriminator field and an optional "path" used only by sync_single.
type wireEnvelope struct {
	Version uint32 `json:"version"`
	Command string `json:"command"`
	Path    string `json:"path,omitempty"`
}

// versionProbe is decoded when the full envelope fails to parse, so a
// version mismatch can still be reported distinctly from a structural
// parse error.
type versionProbe struct {
	Version *uint32 `json:"version"`
}

// Encode serializes cmd to its wire form.
func Encode(cmd Command) ([]byte, error) {
	w := wireEnvelope{Version: cmd.Version, Path: cmd.Path}
	switch cmd.Kind {
	case KindDoSync:
		w.Command = "do_sync"
	case KindReloadConfig:
		w.Command = "reload_config"
	case KindSyncSingle:
		w.Command = "sync_single"
	default:
		return nil, fmt.Errorf("protocol: encode: unknown command kind %v", cmd.Kind)
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}
	return data, nil
}

// decodeEnvelope turns a successfully-unmarshaled wireEnvelope into a
// Command, or a structural error naming the unrecognized "command" value.
func decodeEnvelope(w wireEnvelope) (Command, error) {
	if w.Version != CurrentVersion {
		return Command{}, fmt.Errorf("protocol: envelope version %d, want %d: %w", w.Version, CurrentVersion, ErrVersionMismatch)
	}

	switch w.Command {
	case "do_sync":
		return Command{Version: w.Version, Kind: KindDoSync}, nil
	case "reload_config":
		return Command{Version: w.Version, Kind: KindReloadConfig}, nil
	case "sync_single":
		return Command{Version: w.Version, Kind: KindSyncSingle, Path: w.Path}, nil
	default:
		return Command{}, fmt.Errorf("protocol: unrecognized command %q", w.Command)
	}
}

// ParseCommand parses a single JSON-encoded envelope from data. On a
// structural parse failure, it re-parses data as a bare value exposing only
// "version" so a version mismatch can be distinguished from a malformed
// body — mirroring the original implementation's "try the full envelope,
// then probe just the version field" classification order.
func ParseCommand(data []byte) (Command, error) {
	var w wireEnvelope
	unmarshalErr := json.Unmarshal(data, &w)
	if unmarshalErr == nil {
		return decodeEnvelope(w)
	}

	var probe versionProbe
	if probeErr := json.Unmarshal(data, &probe); probeErr == nil && probe.Version != nil && *probe.Version != CurrentVersion {
		return Command{}, fmt.Errorf("protocol: envelope version %d, want %d: %w", *probe.Version, CurrentVersion, ErrVersionMismatch)
	}

	return Command{}, fmt.Errorf("protocol: parsing command envelope: %w", unmarshalErr)
}

// Reply is the daemon's response to one Command, written back on the same
// connection as a single JSON line.
type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// EncodeReply serializes reply as a newline-terminated JSON line.
func EncodeReply(reply Reply) ([]byte, error) {
	data, err := json.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode reply: %w", err)
	}
	return append(data, '\n'), nil
}

// OKReply builds a successful Reply.
func OKReply() Reply { return Reply{OK: true} }

// ErrReply builds a failed Reply carrying err's message.
func ErrReply(err error) Reply { return Reply{OK: false, Error: err.Error()} }

// StreamDecoder incrementally parses whole JSON-encoded command envelopes
// out of a growing byte buffer: it consumes as many complete values as it
// can, stops at the first "not enough bytes yet" condition, and preserves
// the unconsumed tail for the next Feed call.
type StreamDecoder struct {
	buf bytes.Buffer
}

// NewStreamDecoder returns an empty StreamDecoder.
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{}
}

// Feed appends newly-read bytes and returns every complete command that can
// be parsed from the accumulated buffer so far. Truncated trailing data
// (an incomplete JSON value) is preserved for the next Feed call rather
// than treated as an error.
func (d *StreamDecoder) Feed(data []byte) ([]Command, error) {
	d.buf.Write(data)

	var commands []Command
	for {
		remaining := d.buf.Bytes()
		if len(bytes.TrimSpace(remaining)) == 0 {
			d.buf.Reset()
			break
		}

		dec := json.NewDecoder(bytes.NewReader(remaining))
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if err != nil {
			if isTruncationError(err) {
				break
			}
			return commands, fmt.Errorf("protocol: stream decode: %w", err)
		}

		cmd, parseErr := ParseCommand(raw)
		if parseErr != nil {
			return commands, parseErr
		}
		commands = append(commands, cmd)

		consumed := dec.InputOffset()
		d.buf.Next(int(consumed))
	}

	return commands, nil
}

// isTruncationError reports whether err from json.Decoder.Decode indicates
// the buffer holds an incomplete (not yet fully-arrived) JSON value — EOF
// reached before a full value was seen — as opposed to genuinely malformed
// JSON, which should surface to the caller instead of waiting for more
// bytes that will never resolve the error.
func isTruncationError(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
