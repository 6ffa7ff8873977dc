// Copyright 2025 James Ross
package operation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssignsID(t *testing.T) {
	op := New(Create, "sf", 5, "", map[string]any{"first_name": "A"})
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", op.ID.String())
	assert.Equal(t, StatusPending, StatusPending) // sanity: constants compile
}

func TestValidateCreateRequiresRecord(t *testing.T) {
	op := New(Create, "sf", 1, "", nil)
	err := op.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a non-null record")
}

func TestValidateUpdateWithoutRecordIDAcceptedAtSubmit(t *testing.T) {
	// A missing record_id on UPDATE/READ/DELETE is a dispatch-time
	// failure, not a submit-time one — see internal/dispatch.
	op := New(Update, "sf", 1, "", map[string]any{"first_name": "A"})
	assert.NoError(t, op.Validate())
}

func TestValidateDeleteNeedsNeitherRecordNorRecordID(t *testing.T) {
	op := New(Delete, "sf", 1, "rec-1", nil)
	assert.NoError(t, op.Validate())

	op = New(Delete, "sf", 1, "", nil)
	assert.NoError(t, op.Validate())
}

func TestValidatePriorityRange(t *testing.T) {
	op := New(Read, "sf", 0, "rec-1", nil)
	require.Error(t, op.Validate())

	op.Priority = 11
	require.Error(t, op.Validate())

	op.Priority = 1
	require.NoError(t, op.Validate())
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	op := New(Create, "hubspot", 3, "", map[string]any{"email": "a@b.com"})
	s, err := op.Marshal()
	require.NoError(t, err)

	back, err := Unmarshal(s)
	require.NoError(t, err)
	assert.Equal(t, op.ID, back.ID)
	assert.Equal(t, op.Provider, back.Provider)
	assert.Equal(t, op.Record["email"], back.Record["email"])
}

func TestDueNilScheduledAt(t *testing.T) {
	op := New(Create, "sf", 1, "", map[string]any{})
	assert.True(t, op.Due(op.CreatedAt))
}
