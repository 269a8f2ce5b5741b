package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kezhuw/lsmtail"
)

func newOptions() *lsmtail.Options {
	return &lsmtail.Options{Logger: lsmtail.DiscardLogger}
}

func TestScanFromStartKey(t *testing.T) {
	var out bytes.Buffer
	err := session(t.TempDir(), newOptions(), false, func(sh *shell) error {
		sh.out = &out
		for _, key := range []string{"a", "b", "c"} {
			sh.exec([]string{"PUT", key, key + "-value"})
		}
		out.Reset()
		sh.exec([]string{"SCAN", "b"})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "b: b-value\nc: c-value\n2 entries\n", out.String())
}

func TestScanRange(t *testing.T) {
	var out bytes.Buffer
	err := session(t.TempDir(), newOptions(), false, func(sh *shell) error {
		sh.out = &out
		for _, key := range []string{"a", "b", "c"} {
			sh.exec([]string{"PUT", key, key})
		}
		out.Reset()
		sh.exec([]string{"SCAN", "a", "c"})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "a: a\nb: b\n2 entries\n", out.String())
}

func TestCursorFollowsWrites(t *testing.T) {
	var out bytes.Buffer
	err := session(t.TempDir(), newOptions(), false, func(sh *shell) error {
		sh.out = &out
		sh.exec([]string{"PUT", "a", "1"})
		sh.exec([]string{"FIRST"})
		sh.exec([]string{"PUT", "b", "2"})
		sh.exec([]string{"NEXT"})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "a: 1\nb: 2\n", out.String())
}

func TestSessionClosesDatabaseOnError(t *testing.T) {
	dir := t.TempDir()
	failure := errors.New("shell failed")
	err := session(dir, newOptions(), false, func(sh *shell) error {
		sh.out = &bytes.Buffer{}
		sh.exec([]string{"PUT", "a", "1"})
		sh.exec([]string{"FIRST"})
		return failure
	})
	require.ErrorIs(t, err, failure)

	db, err := lsmtail.Open(dir, newOptions())
	require.NoError(t, err, "lock should be released")
	require.NoError(t, db.Close())
}

func TestExit(t *testing.T) {
	err := session(t.TempDir(), newOptions(), false, func(sh *shell) error {
		var out strings.Builder
		sh.out = &out
		assert.False(t, sh.exec([]string{"PUT", "a", "1"}))
		assert.True(t, sh.exec([]string{".exit"}))
		return nil
	})
	require.NoError(t, err)
}
