package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/openmined/backupsync/internal/version"
	"github.com/stretchr/testify/require"
)

func TestVersionCommandPrintsDetailedVersion(t *testing.T) {
	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, version.Detailed(), strings.TrimSpace(out.String()))
}
