package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob_Defaults(t *testing.T) {
	j, err := NewJob("mailer.send", []any{"a"}, map[string]any{"k": "v"}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "mailer.send", j.Name)
	assert.Equal(t, `["a"]`, j.Args)
	assert.Equal(t, `{"k":"v"}`, j.Kwargs)
	assert.Equal(t, "{}", j.Meta)
	assert.Equal(t, -1, j.Fairness)
	assert.Equal(t, 0, j.Priority)
	assert.Nil(t, j.Scheduled)
	assert.False(t, j.Added.IsZero())
	assert.Equal(t, JobStatusPending, j.Status())

	expected, err := Identity("mailer.send", []any{"a"}, map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, expected, j.Identity)
}

func TestNewJob_RunAfterDoesNotAffectIdentity(t *testing.T) {
	runAfter := time.Now().Add(time.Hour)

	deferred, err := NewJob("mailer.send", nil, nil, map[string]any{"source": "api"}, &runAfter)
	require.NoError(t, err)
	immediate, err := NewJob("mailer.send", nil, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, immediate.Identity, deferred.Identity)
	require.NotNil(t, deferred.Scheduled)
	assert.True(t, deferred.Scheduled.Equal(runAfter))
}

func TestJob_StatusAndTerminal(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		mutate   func(j *Job)
		status   string
		terminal bool
	}{
		{
			name:     "pending",
			mutate:   func(j *Job) {},
			status:   JobStatusPending,
			terminal: false,
		},
		{
			name:     "running",
			mutate:   func(j *Job) { j.Started = &now },
			status:   JobStatusRunning,
			terminal: false,
		},
		{
			name:     "executed",
			mutate:   func(j *Job) { j.Started = &now; j.Executed = &now },
			status:   JobStatusExecuted,
			terminal: true,
		},
		{
			name:     "cancelled",
			mutate:   func(j *Job) { j.Cancelled = &now },
			status:   JobStatusCancelled,
			terminal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := NewJob("ops.noop", nil, nil, nil, nil)
			require.NoError(t, err)

			tt.mutate(j)
			assert.Equal(t, tt.status, j.Status())
			assert.Equal(t, tt.terminal, j.Terminal())
		})
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	args := []any{"text", float64(42), true, nil, []any{"nested", float64(1)}}
	kwargs := map[string]any{
		"str":    "value",
		"num":    float64(3.5),
		"flag":   false,
		"nested": map[string]any{"inner": []any{float64(1), float64(2)}},
	}

	encodedArgs, err := EncodeValues(args)
	require.NoError(t, err)
	decodedArgs, err := DecodeValues(encodedArgs)
	require.NoError(t, err)
	assert.Equal(t, args, decodedArgs)

	encodedKwargs, err := EncodeMapping(kwargs)
	require.NoError(t, err)
	decodedKwargs, err := DecodeMapping(encodedKwargs)
	require.NoError(t, err)
	assert.Equal(t, kwargs, decodedKwargs)
}

func TestCodec_NilEncodesEmpty(t *testing.T) {
	encodedArgs, err := EncodeValues(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", encodedArgs)

	encodedKwargs, err := EncodeMapping(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", encodedKwargs)
}

func TestCodec_DecodeRejectsMalformed(t *testing.T) {
	_, err := DecodeValues("{not json")
	assert.Error(t, err)

	_, err = DecodeMapping("[1,2]")
	assert.Error(t, err)
}
