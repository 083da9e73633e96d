package rendering

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverPlaceholders(t *testing.T) {
	path := writeTemplate(t,
		`<text:p>{{B10}} {{B2}}</text:p>`+
			`<text:p><text:span>{{B</text:span><text:span>1}}</text:span></text:p>`+
			`<text:h>{{B2}}</text:h>`+
			`<text:p>{{ B3 }} {{b4}}</text:p>`)

	got, err := DiscoverPlaceholders(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"{{B1}}", "{{B2}}", "{{B10}}"}, got)
}

func TestDiscoverPlaceholders_None(t *testing.T) {
	got, err := DiscoverPlaceholders(writeTemplate(t, `<text:p>plain</text:p>`))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDiscoverPlaceholders_Missing(t *testing.T) {
	_, err := DiscoverPlaceholders(filepath.Join(t.TempDir(), "nope.odt"))
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
}
