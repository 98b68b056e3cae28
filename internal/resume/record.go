// Package resume persists run progress so an interrupted run can pick up
// where it stopped.
package resume

import (
	"errors"
	"fmt"

	json "github.com/json-iterator/go"
)

// ErrModeMismatch is returned when a record is decoded as the wrong payload.
var ErrModeMismatch = errors.New("resume: record mode mismatch")

// Mode tags the payload carried by a Record.
type Mode string

const (
	ModeList       Mode = "list"
	ModeTried      Mode = "tried"
	ModeGeneration Mode = "generation"
)

// Record is the single persisted progress entry. Run identifies the run
// configuration that wrote it; a record from a different run is not applied.
type Record struct {
	Mode    Mode            `json:"mode"`
	Run     string          `json:"run,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// ListProgress is single-worker progress through an explicit list.
type ListProgress struct {
	Index     int      `json:"index"`
	Total     int      `json:"total"`
	Passwords []string `json:"passwords"`
}

// TriedProgress is the set of list entries already attempted by a
// multi-worker run.
type TriedProgress struct {
	Tried []string `json:"tried"`
}

// GenerationProgress is the position within a generated keyspace. Offsets
// are decimal strings, one per shard of the in-progress length pair, counted
// from each shard's start.
type GenerationProgress struct {
	UsernameLength int      `json:"un_length"`
	PasswordLength int      `json:"pw_length"`
	Charset        string   `json:"charset,omitempty"`
	Offsets        []string `json:"offsets"`
}

// Payload is implemented by the three progress kinds.
type Payload interface {
	mode() Mode
}

func (ListProgress) mode() Mode       { return ModeList }
func (TriedProgress) mode() Mode      { return ModeTried }
func (GenerationProgress) mode() Mode { return ModeGeneration }

// NewRecord encodes p under the mode it belongs to.
func NewRecord(run string, p Payload) (Record, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Record{}, fmt.Errorf("encoding %s payload: %w", p.mode(), err)
	}
	return Record{Mode: p.mode(), Run: run, Payload: raw}, nil
}

// List decodes a list payload.
func (r Record) List() (ListProgress, error) {
	var p ListProgress
	return p, r.decode(ModeList, &p)
}

// Tried decodes a tried-set payload.
func (r Record) Tried() (TriedProgress, error) {
	var p TriedProgress
	return p, r.decode(ModeTried, &p)
}

// Generation decodes a generation payload.
func (r Record) Generation() (GenerationProgress, error) {
	var p GenerationProgress
	return p, r.decode(ModeGeneration, &p)
}

func (r Record) decode(want Mode, v any) error {
	if r.Mode != want {
		return fmt.Errorf("%w: have %q, want %q", ErrModeMismatch, r.Mode, want)
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", want, err)
	}
	return nil
}

// FilterTried returns the entries of list not present in tried, preserving
// order.
func FilterTried(list, tried []string) []string {
	if len(tried) == 0 {
		return list
	}
	done := make(map[string]struct{}, len(tried))
	for _, t := range tried {
		done[t] = struct{}{}
	}
	out := make([]string, 0, len(list))
	for _, s := range list {
		if _, ok := done[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
