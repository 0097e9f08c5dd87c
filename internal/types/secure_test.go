package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretString_NeverPrinted(t *testing.T) {
	s := SecretString("postgres://app:hunter2@db/pawtrail")

	for _, out := range []string{
		fmt.Sprint(s),
		fmt.Sprintf("%s %v %+v", s, s, s),
		fmt.Sprintf("%#v", s),
		fmt.Sprintf("%v", struct{ URL SecretString }{s}),
	} {
		assert.NotContains(t, out, "hunter2")
	}

	b, err := json.Marshal(map[string]SecretString{"url": s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"***REDACTED***"}`, string(b))

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("connecting", "url", s)
	assert.NotContains(t, buf.String(), "hunter2")
	assert.Contains(t, buf.String(), redacted)

	assert.Equal(t, "postgres://app:hunter2@db/pawtrail", s.Unmask())
	assert.Equal(t, "", SecretString("").Unmask())
}
