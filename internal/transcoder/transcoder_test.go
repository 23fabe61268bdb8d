// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ManuGH/cinevault/internal/library"
	"github.com/ManuGH/cinevault/internal/media"
	"github.com/ManuGH/cinevault/internal/objectstore"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncoder writes a playlist plus segments the way ffmpeg's hls muxer does.
type fakeEncoder struct {
	mu       sync.Mutex
	segments int
	failOn   string
	calls    []string
	workDirs []string
}

func (f *fakeEncoder) Encode(ctx context.Context, spec EncodeSpec) error {
	f.mu.Lock()
	f.calls = append(f.calls, spec.Rendition.Name)
	f.workDirs = append(f.workDirs, spec.WorkDir)
	f.mu.Unlock()

	if _, err := os.Stat(spec.Input); err != nil {
		return fmt.Errorf("input not staged: %w", err)
	}
	if spec.Rendition.Name == f.failOn {
		return &ExitError{Rendition: spec.Rendition.Name, ExitCode: 1, Stderr: "Conversion failed!"}
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n#EXT-X-PLAYLIST-TYPE:VOD\n")
	for i := 0; i < f.segments; i++ {
		name := media.SegmentName(spec.AssetID, spec.Rendition.Name, i)
		if err := os.WriteFile(filepath.Join(spec.WorkDir, name), []byte(name), 0o600); err != nil {
			return err
		}
		fmt.Fprintf(&b, "#EXTINF:6.000000,\n%s\n", name)
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return os.WriteFile(filepath.Join(spec.WorkDir, spec.PlaylistName()), []byte(b.String()), 0o600)
}

type fixture struct {
	store   *objectstore.FSStore
	assets  *library.MemoryStore
	enc     *fakeEncoder
	tc      *Transcoder
	workDir string
}

func newFixture(t *testing.T, parallel int) *fixture {
	t.Helper()
	store, err := objectstore.NewFSStore(objectstore.FSConfig{Root: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	assets := library.NewMemoryStore()
	enc := &fakeEncoder{segments: 3}
	work := t.TempDir()
	tc, err := New(store, assets, enc, Config{WorkRoot: work, ParallelRenditions: parallel}, zerolog.Nop())
	require.NoError(t, err)
	return &fixture{store: store, assets: assets, enc: enc, tc: tc, workDir: work}
}

func (f *fixture) seedUpload(t *testing.T, assetID string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.store.Upload(ctx, media.SourceName(assetID), strings.NewReader("mp4 bytes"))
	require.NoError(t, err)
	require.NoError(t, f.assets.SetPlayableFile(ctx, assetID, media.SourceName(assetID)))
}

func (f *fixture) read(t *testing.T, name string) string {
	t.Helper()
	rc, err := f.store.Open(context.Background(), name)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func assertWorkRootEmpty(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "work dirs must be removed")
}

func TestRun_PublishesLadder(t *testing.T) {
	f := newFixture(t, 1)
	f.seedUpload(t, "42")
	ctx := context.Background()

	require.NoError(t, f.tc.Run(ctx, Job{AssetID: "42", SourceName: "42.mp4"}))

	a, err := f.assets.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "42_master.m3u8", a.PlayableFile)
	assert.Equal(t, []string{"480p", "720p", "1080p"}, f.enc.calls)

	names, err := f.store.ListByPrefix(ctx, "42")
	require.NoError(t, err)
	want := []string{"42.mp4", "42_master.m3u8"}
	for _, r := range []string{"480p", "720p", "1080p"} {
		want = append(want, media.QualityPlaylistName("42", r))
		for i := 0; i < 3; i++ {
			want = append(want, media.SegmentName("42", r, i))
		}
	}
	assert.ElementsMatch(t, want, names)

	master := f.read(t, "42_master.m3u8")
	if diff := cmp.Diff(strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-STREAM-INF:BANDWIDTH=1000000,RESOLUTION=853x480",
		"42_480p.m3u8",
		"#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720",
		"42_720p.m3u8",
		"#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080",
		"42_1080p.m3u8",
		"",
	}, "\n"), master); diff != "" {
		t.Fatalf("master mismatch (-want +got):\n%s", diff)
	}

	assertWorkRootEmpty(t, f.workDir)
}

func TestRun_FailedRenditionKeepsPointer(t *testing.T) {
	f := newFixture(t, 1)
	f.seedUpload(t, "7")
	f.enc.failOn = "1080p"
	ctx := context.Background()

	err := f.tc.Run(ctx, Job{AssetID: "7", SourceName: "7.mp4"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranscodeFailed)
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, "1080p", exitErr.Rendition)

	a, err := f.assets.Get(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "7.mp4", a.PlayableFile)

	ok, err := f.store.Exists(ctx, "7_master.m3u8")
	require.NoError(t, err)
	assert.False(t, ok, "master must not be written on failure")

	// earlier renditions stay behind as unreferenced objects
	ok, err = f.store.Exists(ctx, "7_480p.m3u8")
	require.NoError(t, err)
	assert.True(t, ok)

	assertWorkRootEmpty(t, f.workDir)
}

func TestRun_IsIdempotent(t *testing.T) {
	f := newFixture(t, 3)
	f.seedUpload(t, "42")
	ctx := context.Background()

	require.NoError(t, f.tc.Run(ctx, Job{AssetID: "42"}))
	first, err := f.store.ListByPrefix(ctx, "42")
	require.NoError(t, err)

	require.NoError(t, f.tc.Run(ctx, Job{AssetID: "42"}))
	second, err := f.store.ListByPrefix(ctx, "42")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	a, err := f.assets.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "42_master.m3u8", a.PlayableFile)

	// distinct work dirs per run
	seen := map[string]struct{}{}
	for _, d := range f.enc.workDirs {
		seen[d] = struct{}{}
	}
	assert.Len(t, seen, 2)
	assertWorkRootEmpty(t, f.workDir)
}

func TestRun_MissingSourceFailsBeforeEncoding(t *testing.T) {
	f := newFixture(t, 1)
	err := f.tc.Run(context.Background(), Job{AssetID: "99"})
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
	assert.Empty(t, f.enc.calls)
	assertWorkRootEmpty(t, f.workDir)
}

func TestRun_RejectsBadAssetID(t *testing.T) {
	f := newFixture(t, 1)
	err := f.tc.Run(context.Background(), Job{AssetID: "../etc"})
	assert.ErrorIs(t, err, media.ErrInvalidAssetID)
}

func TestLocalSegments_NumericOrder(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"1_480p_1000.ts", "1_480p_999.ts", "1_480p_000.ts", "1_720p_000.ts", "1_480p.m3u8"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o600))
	}
	got, err := localSegments(dir, "1_480p_")
	require.NoError(t, err)
	assert.Equal(t, []string{"1_480p_000.ts", "1_480p_999.ts", "1_480p_1000.ts"}, got)
}
