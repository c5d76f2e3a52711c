//go:build linux

package inotify_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hawkingrei/notify/inotify"
	"github.com/hawkingrei/notify/poller"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestHeaderSizeMatchesKernel(t *testing.T) {
	require.Equal(t, unix.SizeofInotifyEvent, inotify.HeaderSize)
}

func TestKernelCreateThenDelete(t *testing.T) {
	dir := t.TempDir()
	in, err := inotify.Init()
	require.NoError(t, err)
	defer in.Close()

	wd, err := in.AddWatch(dir, inotify.WatchCreate|inotify.WatchDelete|inotify.WatchModify)
	require.NoError(t, err)

	path := filepath.Join(dir, "a.txt")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, os.Remove(path))

	buf := make([]byte, 4096)
	var got []inotify.Event
	for len(got) < 2 {
		evs, err := in.ReadEventsBlocking(buf, 0)
		require.NoError(t, err)
		got = append(got, evs.Collect()...)
	}
	require.Len(t, got, 2)
	require.True(t, got[0].Mask.Has(inotify.Create))
	require.Equal(t, "a.txt", got[0].Name)
	require.True(t, got[1].Mask.Has(inotify.Delete))
	require.Equal(t, "a.txt", got[1].Name)
	require.Equal(t, wd, got[0].WD)
}

func TestKernelWatchedFileHasNoName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	in, err := inotify.Init()
	require.NoError(t, err)
	defer in.Close()
	wd, err := in.AddWatch(path, inotify.WatchModify)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("This should trigger an inotify event."), 0o644))

	evs, err := in.ReadEventsBlocking(make([]byte, 1024), 0)
	require.NoError(t, err)
	require.True(t, evs.Next())
	require.Equal(t, wd, evs.Event().WD)
	require.Empty(t, evs.Event().Name)
}

func TestKernelReadWouldBlock(t *testing.T) {
	in, err := inotify.Init()
	require.NoError(t, err)
	defer in.Close()

	_, err = in.ReadEvents(make([]byte, 1024), 0)
	require.ErrorIs(t, err, inotify.ErrWouldBlock)
}

func TestKernelBufferTooSmall(t *testing.T) {
	dir := t.TempDir()
	in, err := inotify.Init()
	require.NoError(t, err)
	defer in.Close()

	_, err = in.AddWatch(dir, inotify.WatchCreate)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "some-file-name"), nil, 0o644))

	_, err = in.ReadEventsBlocking(make([]byte, inotify.HeaderSize), 0)
	require.ErrorIs(t, err, inotify.ErrBufferTooSmall)

	evs, err := in.ReadEventsBlocking(make([]byte, 1024), 0)
	require.NoError(t, err)
	require.True(t, evs.Next())
	require.Equal(t, "some-file-name", evs.Event().Name)
}

func TestKernelDescriptorsOfInstancesDiffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	in1, err := inotify.Init()
	require.NoError(t, err)
	defer in1.Close()
	in2, err := inotify.Init()
	require.NoError(t, err)
	defer in2.Close()

	wd1, err := in1.AddWatch(path, inotify.WatchAccess)
	require.NoError(t, err)
	wd2, err := in2.AddWatch(path, inotify.WatchAccess)
	require.NoError(t, err)
	require.NotEqual(t, wd1, wd2)
	require.ErrorIs(t, in1.RemoveWatch(wd2), inotify.ErrForeignWatch)
}

func TestKernelDescriptorsSurviveFdReuse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	in1, err := inotify.Init()
	require.NoError(t, err)
	wd1, err := in1.AddWatch(path, inotify.WatchAccess)
	require.NoError(t, err)
	fd1 := in1.Fd()
	require.NoError(t, in1.Close())

	in2, err := inotify.Init()
	require.NoError(t, err)
	defer in2.Close()
	wd2, err := in2.AddWatch(path, inotify.WatchAccess)
	require.NoError(t, err)

	if in2.Fd() == fd1 {
		t.Logf("fd %d was reused", fd1)
	}
	require.NotEqual(t, wd1, wd2)
}

func TestKernelRemoveWatchEmitsIgnored(t *testing.T) {
	dir := t.TempDir()
	in, err := inotify.Init()
	require.NoError(t, err)
	defer in.Close()

	wd, err := in.AddWatch(dir, inotify.WatchCreate)
	require.NoError(t, err)
	require.NoError(t, in.RemoveWatch(wd))
	_, ok := in.Watches().Resolve(wd.ID())
	require.False(t, ok)

	evs, err := in.ReadEventsBlocking(make([]byte, 1024), 0)
	require.NoError(t, err)
	require.True(t, evs.Next())
	require.True(t, evs.Event().Mask.Has(inotify.Ignored))
	require.Equal(t, wd, evs.Event().WD)
}

func TestKernelAddWatchMissingPath(t *testing.T) {
	in, err := inotify.Init()
	require.NoError(t, err)
	defer in.Close()

	_, err = in.AddWatch(filepath.Join(t.TempDir(), "missing"), inotify.WatchModify)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestKernelEventStream(t *testing.T) {
	dir := t.TempDir()
	in, err := inotify.Init()
	require.NoError(t, err)
	defer in.Close()

	p, err := poller.New()
	require.NoError(t, err)
	defer p.Close()

	s, err := in.EventStream(make([]byte, 1024), p)
	require.NoError(t, err)
	defer s.Close()

	wd, err := s.Watches().Add(dir, inotify.WatchCreate)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "late"), nil, 0o644)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ev, err := s.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, wd, ev.WD)
	require.Equal(t, "late", ev.Name)
}
