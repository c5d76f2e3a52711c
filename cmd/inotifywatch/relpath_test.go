package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRelabel(t *testing.T) {
	r := newRelabel([]string{"/mnt/kubernetes-disks-bazel/", "/data1/bazel/cache"})
	require.Equal(t, "kubernetes-disks-bazel/disk3/2c389379-351c-4b6d-a402-ad03b7b7d449",
		r.rel("/mnt/kubernetes-disks-bazel/disk3/2c389379-351c-4b6d-a402-ad03b7b7d449"))
	require.Equal(t, "cache/ac/01", r.rel("/data1/bazel/cache/ac/01"))
	require.Equal(t, "cache", r.rel("/data1/bazel/cache"))
}

func TestRelabelInnermostRoot(t *testing.T) {
	r := newRelabel([]string{"/data", "/data/bazel"})
	require.Equal(t, "bazel/cas/ff", r.rel("/data/bazel/cas/ff"))
	require.Equal(t, "data/other", r.rel("/data/other"))
}

func TestRelabelOutsideRoots(t *testing.T) {
	r := newRelabel([]string{"/data/bazel"})
	require.Equal(t, "/data/bazelisk/x", r.rel("/data/bazelisk/x"))
	require.Equal(t, "relative/x", r.rel("relative/x"))
}
