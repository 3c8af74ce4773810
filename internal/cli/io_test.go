package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_IO_Shows_Warnings_Before_First_Output_And_Again_At_Finish(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer

	o := NewIO(&out, &errOut)
	o.Warn("snapshot is stale", "rerun with --verbose")
	o.Println("first")
	o.Printf("%s\n", "second")

	require.Equal(t, "warning: snapshot is stale: rerun with --verbose\n", errOut.String())

	code := o.Finish()

	require.Zero(t, code)
	require.Equal(t, "first\nsecond\n", out.String())
	require.Equal(t, 2, strings.Count(errOut.String(), "warning: snapshot is stale"))
}

func Test_IO_Finish_Shows_Warnings_Twice_When_Nothing_Was_Printed(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer

	o := NewIO(&out, &errOut)
	o.Warn("a", "b")

	require.Zero(t, o.Finish())
	require.Empty(t, out.String())
	require.Equal(t, "warning: a: b\nwarning: a: b\n", errOut.String())
}
