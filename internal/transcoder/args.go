// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import (
	"fmt"
	"strconv"

	"github.com/ManuGH/cinevault/internal/media"
)

// EncodeSpec is one encoder pass: a source file into one HLS rendition
// written under WorkDir with the conventional names.
type EncodeSpec struct {
	Input            string
	WorkDir          string
	AssetID          string
	Rendition        media.Rendition
	SegmentSeconds   int
	AudioBitrateKbps int
	Preset           string
}

// PlaylistName is the quality playlist the pass produces.
func (s EncodeSpec) PlaylistName() string {
	return media.QualityPlaylistName(s.AssetID, s.Rendition.Name)
}

// BuildArgs returns ffmpeg arguments for spec. Output paths are relative, so
// the process must run with WorkDir as its working directory; ffmpeg then writes
// bare segment names into the playlist.
func BuildArgs(s EncodeSpec) []string {
	kbps := s.Rendition.BitrateKbps
	seg := strconv.Itoa(s.SegmentSeconds)
	return []string{
		"-y",
		"-i", s.Input,
		"-map", "0:v:0",
		"-map", "0:a:0?",
		// constrain height only; -2 keeps the width even for libx264
		"-vf", fmt.Sprintf("scale=-2:%d", s.Rendition.Height),
		"-c:v", "libx264",
		"-preset", s.Preset,
		"-profile:v", "main",
		"-b:v", fmt.Sprintf("%dk", kbps),
		"-maxrate", fmt.Sprintf("%dk", kbps*107/100),
		"-bufsize", fmt.Sprintf("%dk", kbps*2),
		// keyframe on every segment boundary so segments start decodable
		"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%s)", seg),
		"-sc_threshold", "0",
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", s.AudioBitrateKbps),
		"-ac", "2",
		"-f", "hls",
		"-hls_time", seg,
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", media.SegmentPattern(s.AssetID, s.Rendition.Name),
		s.PlaylistName(),
	}
}
