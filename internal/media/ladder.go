// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package media holds the rendition ladder and the object naming convention
// shared by the transcoder and everything that reads its output.
package media

import (
	"fmt"
	"math"
	"strings"
)

// Rendition is one resolution/bitrate variant of a source video.
type Rendition struct {
	Name        string // e.g. "720p"; part of every derived object name
	Height      int
	BitrateKbps int
}

// Width assumes a 16:9 source. The encoder only constrains height, so this is
// the nominal width advertised in the master playlist.
func (r Rendition) Width() int {
	return int(math.Round(float64(r.Height) * 16 / 9))
}

// BandwidthBps is the BANDWIDTH attribute for EXT-X-STREAM-INF.
func (r Rendition) BandwidthBps() int {
	return r.BitrateKbps * 1000
}

// Resolution formats the RESOLUTION attribute ("1280x720").
func (r Rendition) Resolution() string {
	return fmt.Sprintf("%dx%d", r.Width(), r.Height)
}

// Ladder is ordered low to high.
type Ladder []Rendition

// DefaultLadder is the fixed production ladder.
func DefaultLadder() Ladder {
	return Ladder{
		{Name: "480p", Height: 480, BitrateKbps: 1000},
		{Name: "720p", Height: 720, BitrateKbps: 2500},
		{Name: "1080p", Height: 1080, BitrateKbps: 5000},
	}
}

// Lookup finds a rendition by name.
func (l Ladder) Lookup(name string) (Rendition, bool) {
	for _, r := range l {
		if r.Name == name {
			return r, true
		}
	}
	return Rendition{}, false
}

// Names returns the rendition names in ladder order.
func (l Ladder) Names() []string {
	out := make([]string, 0, len(l))
	for _, r := range l {
		out = append(out, r.Name)
	}
	return out
}

// Mid returns the middle rung, used as the preferred default quality.
func (l Ladder) Mid() (Rendition, bool) {
	if len(l) == 0 {
		return Rendition{}, false
	}
	return l[len(l)/2], true
}

// Validate rejects ladders whose names would break the naming convention.
func (l Ladder) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("ladder is empty")
	}
	seen := make(map[string]struct{}, len(l))
	prev := 0
	for i, r := range l {
		// "master" would collide with the master playlist name
		if r.Name == "" || r.Name == "master" || strings.ContainsAny(r.Name, "_/.") {
			return fmt.Errorf("ladder[%d]: invalid name %q", i, r.Name)
		}
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("ladder[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = struct{}{}
		if r.Height <= 0 || r.BitrateKbps <= 0 {
			return fmt.Errorf("ladder[%d]: height and bitrate must be positive", i)
		}
		if r.Height < prev {
			return fmt.Errorf("ladder[%d]: must be ordered low to high", i)
		}
		prev = r.Height
	}
	return nil
}
