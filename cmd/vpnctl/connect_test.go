// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTailLogFile_ReturnsLastNLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vpnctl.log")
	content := strings.Repeat("line\n", 3) + "line4\nline5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	lines := tailLogFile(path, 2)
	assert.Equal(t, []string{"line4", "line5"}, lines)
}

func TestTailLogFile_MissingFile(t *testing.T) {
	assert.Nil(t, tailLogFile(filepath.Join(t.TempDir(), "missing.log"), 5))
}
