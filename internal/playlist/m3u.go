// SPDX-License-Identifier: MIT

// Package playlist writes HLS master playlists and rewrites stored quality
// playlists into per-request signed documents.
package playlist

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ManuGH/cinevault/internal/media"
	"golang.org/x/sync/errgroup"
)

// ContentType is served for every playlist response.
const ContentType = "application/vnd.apple.mpegurl"

// Variant is one EXT-X-STREAM-INF entry of a master playlist.
type Variant struct {
	BandwidthBps int
	Resolution   string
	URI          string
}

// VariantFor builds the entry for a ladder rung.
func VariantFor(r media.Rendition, uri string) Variant {
	return Variant{BandwidthBps: r.BandwidthBps(), Resolution: r.Resolution(), URI: uri}
}

// WriteMaster renders a master playlist in variant order.
func WriteMaster(w io.Writer, variants []Variant) error {
	buf := &bytes.Buffer{}
	buf.WriteString("#EXTM3U\n")
	for _, v := range variants {
		fmt.Fprintf(buf, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n", v.BandwidthBps, v.Resolution)
		buf.WriteString(v.URI + "\n")
	}
	_, err := io.Copy(w, buf)
	return err
}

// SignFunc maps a stored segment name to the URL a client should fetch.
type SignFunc func(ctx context.Context, segment string) (string, error)

// segmentRef returns the stored segment name referenced by a playlist line.
func segmentRef(line string) (string, bool) {
	s := strings.TrimSpace(line)
	if s == "" || strings.HasPrefix(s, "#") {
		return "", false
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if !media.IsSegment(s) {
		return "", false
	}
	return path.Base(s), true
}

// RewriteSegments replaces every segment URI line with the result of sign and
// leaves every other line byte-for-byte intact. Signing runs with at most
// limit calls in flight; the first failure aborts the rewrite.
func RewriteSegments(ctx context.Context, text string, limit int, sign SignFunc) (string, int, error) {
	lines := strings.Split(text, "\n")

	type ref struct {
		idx  int
		name string
	}
	var refs []ref
	for i, l := range lines {
		if name, ok := segmentRef(l); ok {
			refs = append(refs, ref{idx: i, name: name})
		}
	}

	urls := make([]string, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, r := range refs {
		g.Go(func() error {
			u, err := sign(gctx, r.name)
			if err != nil {
				return fmt.Errorf("sign %s: %w", r.name, err)
			}
			urls[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", 0, err
	}

	for i, r := range refs {
		// keep CRLF playlists CRLF
		if strings.HasSuffix(lines[r.idx], "\r") {
			lines[r.idx] = urls[i] + "\r"
			continue
		}
		lines[r.idx] = urls[i]
	}
	return strings.Join(lines, "\n"), len(refs), nil
}
