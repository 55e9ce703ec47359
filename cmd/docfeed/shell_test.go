package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/docfeed/pkg/client"
)

func newTestShell(t *testing.T, a *app) *shell {
	t.Helper()
	em, err := newEmulator(context.Background(), a.cfg, a.log, 60, 20)
	require.NoError(t, err)
	c, err := client.New(em, em, a.cfg, client.WithLogger(a.log))
	require.NoError(t, err)
	sh := &shell{em: em, client: c, out: &bytes.Buffer{}, checkpointPath: a.cfg.Checkpoint.Path}
	require.NoError(t, sh.reset(""))
	t.Cleanup(sh.close)
	return sh
}

func output(sh *shell) *bytes.Buffer {
	return sh.out.(*bytes.Buffer)
}

func TestShellCommands(t *testing.T) {
	sh := newTestShell(t, testApp(t))
	ctx := context.Background()

	quit, err := sh.exec(ctx, "help")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, output(sh).String(), "split <id>")

	output(sh).Reset()
	_, err = sh.exec(ctx, "next 2")
	require.NoError(t, err)
	assert.Contains(t, output(sh).String(), "item(s)")

	_, err = sh.exec(ctx, "split 0")
	require.NoError(t, err)
	assert.Contains(t, output(sh).String(), "partition 0 split into 4 and 5")

	output(sh).Reset()
	_, err = sh.exec(ctx, "partitions")
	require.NoError(t, err)
	assert.Contains(t, output(sh).String(), "5 ")

	_, err = sh.exec(ctx, "merge 4 5")
	require.NoError(t, err)
	assert.Contains(t, output(sh).String(), "merged into 6")

	_, err = sh.exec(ctx, "next 100")
	require.NoError(t, err)
	assert.Contains(t, output(sh).String(), "no more results")

	output(sh).Reset()
	_, err = sh.exec(ctx, "state")
	require.NoError(t, err)
	assert.Contains(t, output(sh).String(), "(none)")

	quit, err = sh.exec(ctx, "exit")
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestShellSaveAndLoad(t *testing.T) {
	sh := newTestShell(t, testApp(t))
	ctx := context.Background()

	_, err := sh.exec(ctx, "save early")
	assert.Error(t, err, "nothing to resume before the first page")

	_, err = sh.exec(ctx, "next 3")
	require.NoError(t, err)
	token := sh.it.ContinuationToken()
	_, err = sh.exec(ctx, "save mid")
	require.NoError(t, err)

	_, err = sh.exec(ctx, "next 2")
	require.NoError(t, err)
	assert.NotEqual(t, token, sh.it.ContinuationToken())

	_, err = sh.exec(ctx, "load mid")
	require.NoError(t, err)
	assert.Equal(t, token, sh.it.ContinuationToken())

	_, err = sh.exec(ctx, "load missing")
	assert.Error(t, err)
}

func TestShellRejectsBadInput(t *testing.T) {
	sh := newTestShell(t, testApp(t))
	ctx := context.Background()
	for _, in := range []string{"bogus", "next zero", "split", "split x", "merge 1", "merge a b", "save", "load"} {
		_, err := sh.exec(ctx, in)
		assert.Error(t, err, in)
	}
	quit, err := sh.exec(ctx, "   ")
	assert.NoError(t, err)
	assert.False(t, quit)
}
