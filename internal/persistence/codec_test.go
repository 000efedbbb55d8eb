package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/retrofit/pkg/api"
)

func TestDecodeValue_EmptyPayloadIsZero(t *testing.T) {
	prog, err := DecodeValue[api.Program](nil)
	require.NoError(t, err)
	assert.Equal(t, api.Program{}, prog)

	data, err := EncodeValue(nil)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestDecodeValue_WrongTypeFails(t *testing.T) {
	data, err := EncodeValue("not a program")
	require.NoError(t, err)

	_, err = DecodeValue[api.Program](data)
	assert.Error(t, err)
}

func TestEncodeValue_Participant(t *testing.T) {
	p := sampleParticipant("p-1", "RES", baseTime)
	p.StatusHistory = []api.ParticipantStatusUpdate{{Status: api.StatusAuditScheduled, UpdatedAt: baseTime, UpdatedBy: "ops"}}

	data, err := EncodeValue(*p)
	require.NoError(t, err)

	got, err := DecodeValue[api.Participant](data)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt))
	require.Len(t, got.StatusHistory, 1)
	assert.Equal(t, api.StatusAuditScheduled, got.StatusHistory[0].Status)
	assert.Nil(t, got.CompletedAt)
}

func TestEncodeValue_UsesParticipantFieldNames(t *testing.T) {
	p := sampleParticipant("p-2", "LIS", baseTime)

	data, err := EncodeValue(*p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":"p-2"`)
	assert.Contains(t, string(data), `"program":"LIS"`)
	assert.NotContains(t, string(data), "completedAt")
}
