package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/energizer-project/loginhelper/internal/session"
)

func TestReportOutcome(t *testing.T) {
	failure := errors.New("broken pipe")

	tests := []struct {
		name    string
		err     error
		want    error
		level   string
		message string
	}{
		{"bye", nil, nil, "", ""},
		{"cancelled", context.Canceled, nil, "", ""},
		{"denied", session.ErrConfigDenied, session.ErrConfigDenied, "info", "client turned away"},
		{"rejected", fmt.Errorf("%w: db locked", session.ErrCredentialRejected), session.ErrCredentialRejected, "info", "client turned away"},
		{"unanswered setting check", session.ErrProbeTimeout, session.ErrProbeTimeout, "info", "client turned away"},
		{"failure", failure, failure, "error", "session failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := reportOutcome(zerolog.New(&buf), tt.err)

			if tt.want == nil {
				assert.NoError(t, err)
				assert.Zero(t, buf.Len())
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, buf.String(), `"level":"`+tt.level+`"`)
			assert.Contains(t, buf.String(), tt.message)
		})
	}
}

func TestParseFlagsHelpAndVersion(t *testing.T) {
	assert.NoError(t, run([]string{"--version"}))
	assert.NoError(t, run([]string{"--help"}))
	assert.Error(t, run([]string{"--no-such-flag"}))
}
