// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Object names are the only link between stored blobs and their asset.
// Discovery, cleanup and playlist rewriting all depend on these exact shapes:
//
//	{assetId}.mp4                    original upload
//	{assetId}_{rendition}.m3u8       quality playlist
//	{assetId}_{rendition}_{seq}.ts   segment, seq zero-padded to 3 digits
//	{assetId}_master.m3u8            master playlist
const (
	SourceExt        = ".mp4"
	PlaylistExt      = ".m3u8"
	SegmentExt       = ".ts"
	MasterSuffix     = "_master" + PlaylistExt
	segmentSeqFormat = "%03d"
)

// ErrInvalidAssetID is returned for identifiers that cannot be embedded in object names.
var ErrInvalidAssetID = errors.New("invalid asset id")

// Underscores and dots are excluded: both are separators in object names.
var assetIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// ValidateAssetID checks that id is safe to embed in object names.
func ValidateAssetID(id string) error {
	if !assetIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidAssetID, id)
	}
	return nil
}

// SourceName is the stored name of the uploaded original.
func SourceName(assetID string) string {
	return assetID + SourceExt
}

// QualityPlaylistName is the stored per-rendition playlist.
func QualityPlaylistName(assetID, rendition string) string {
	return assetID + "_" + rendition + PlaylistExt
}

// SegmentPattern is the ffmpeg -hls_segment_filename template for a rendition.
func SegmentPattern(assetID, rendition string) string {
	return assetID + "_" + rendition + "_" + segmentSeqFormat + SegmentExt
}

// SegmentName is the stored name of segment seq of a rendition.
func SegmentName(assetID, rendition string, seq int) string {
	return fmt.Sprintf(SegmentPattern(assetID, rendition), seq)
}

// SegmentPrefix matches every segment of one rendition.
func SegmentPrefix(assetID, rendition string) string {
	return assetID + "_" + rendition + "_"
}

// MasterPlaylistName is the stored master playlist.
func MasterPlaylistName(assetID string) string {
	return assetID + MasterSuffix
}

// VariantName is a legacy single-file rendition ("{base}_{rendition}.mp4").
func VariantName(base, rendition string) string {
	return base + "_" + rendition + SourceExt
}

// IsMasterPlaylist reports whether a playable-file pointer refers to HLS output.
func IsMasterPlaylist(name string) bool {
	return strings.HasSuffix(name, MasterSuffix)
}

// IsSegment reports whether name looks like a media segment reference.
func IsSegment(name string) bool {
	return strings.HasSuffix(name, SegmentExt)
}

// MasterBase strips the master suffix: "42_master.m3u8" -> "42".
func MasterBase(name string) string {
	return strings.TrimSuffix(name, MasterSuffix)
}

// StemOf strips the extension: "42.mp4" -> "42".
func StemOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

// BelongsTo reports whether a stored name was derived from assetID.
// A bare prefix match is not enough: asset "4" must not claim "42_720p.m3u8".
func BelongsTo(name, assetID string) bool {
	if !strings.HasPrefix(name, assetID) {
		return false
	}
	rest := name[len(assetID):]
	return strings.HasPrefix(rest, ".") || strings.HasPrefix(rest, "_")
}

// RenditionFromPlaylist extracts the rendition from a quality playlist name
// belonging to assetID ("42_720p.m3u8" -> "720p").
func RenditionFromPlaylist(assetID, name string) (string, bool) {
	prefix := assetID + "_"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, PlaylistExt) {
		return "", false
	}
	r := strings.TrimSuffix(strings.TrimPrefix(name, prefix), PlaylistExt)
	if r == "" || r == "master" || strings.ContainsAny(r, "_/.") {
		return "", false
	}
	return r, true
}

// ContentType maps stored names to their HTTP content type.
func ContentType(name string) string {
	switch {
	case strings.HasSuffix(name, PlaylistExt):
		return "application/vnd.apple.mpegurl"
	case strings.HasSuffix(name, SegmentExt):
		return "video/mp2t"
	case strings.HasSuffix(name, SourceExt):
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
