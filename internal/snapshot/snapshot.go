// Package snapshot keeps the most recent compressed observations of each
// session so that later actions can refer to elements by snapshot and snapId.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"browsernerd/internal/dom"
)

// DefaultMaxPerSession is how many snapshots a session keeps.
const DefaultMaxPerSession = 3

// ErrStaleReference means a snapshotId or snapId no longer resolves, usually
// because the snapshot was evicted or belongs to another session.
var ErrStaleReference = errors.New("stale snapshot reference")

// Meta summarizes the compression of a snapshot.
type Meta struct {
	TokenCount       int `json:"tokenCount"`
	ElementCount     int `json:"elementCount"`
	ReductionPercent int `json:"reductionPercent"`
}

// Snapshot is one compressed observation. It is never modified after Store.
type Snapshot struct {
	ID        string        `json:"snapshotId"`
	SessionID string        `json:"sessionId"`
	URL       string        `json:"url"`
	Title     string        `json:"title,omitempty"`
	FrameID   string        `json:"frameId"`
	CreatedAt time.Time     `json:"createdAt"`
	HTML      string        `json:"html"`
	Elements  []dom.Element `json:"elements"`
	Meta      Meta          `json:"meta"`
}

// Element returns the element with snapID, or nil.
func (s *Snapshot) Element(snapID string) *dom.Element {
	for i := range s.Elements {
		if s.Elements[i].SnapID == snapID {
			el := s.Elements[i]
			return &el
		}
	}
	return nil
}

func (s *Snapshot) clone() *Snapshot {
	cp := *s
	cp.Elements = slices.Clone(s.Elements)
	return &cp
}

// Stats counts stored snapshots.
type Stats struct {
	Sessions  int `json:"sessions"`
	Snapshots int `json:"snapshots"`
}

// Store holds snapshots per session. Lookups that miss return nil with a nil
// error.
type Store interface {
	Store(ctx context.Context, snap *Snapshot) error
	Get(ctx context.Context, sessionID, snapshotID string) (*Snapshot, error)
	GetElement(ctx context.Context, sessionID, snapshotID, snapID string) (*dom.Element, error)
	Latest(ctx context.Context, sessionID string) (*Snapshot, error)
	List(ctx context.Context, sessionID string) ([]*Snapshot, error)
	Clear(ctx context.Context, sessionID string) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// NewID returns a snapshot id of the form snap_<unixms>_<8 hex>.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("snap_%d_%s", now.UnixMilli(), suffix)
}

func validate(snap *Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	if snap.ID == "" {
		return errors.New("snapshot id required")
	}
	if snap.SessionID == "" {
		return errors.New("session id required")
	}
	return nil
}

// Stale builds the error returned when a reference cannot be resolved.
func Stale(snapshotID, snapID string) error {
	if snapID == "" {
		return fmt.Errorf("%w: snapshot %s not found", ErrStaleReference, snapshotID)
	}
	return fmt.Errorf("%w: element %s not found in snapshot %s", ErrStaleReference, snapID, snapshotID)
}
