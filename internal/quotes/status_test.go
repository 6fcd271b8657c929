package quotes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTransitions(t *testing.T) {
	cases := []struct {
		from Status
		on   Event
		to   Status
	}{
		{StatusPending, EventNegotiate, StatusNegotiation},
		{StatusPending, EventPassToClosing, StatusClosing},
		{StatusNegotiation, EventAuthorize, StatusContractPending},
		{StatusClosing, EventAuthorize, StatusContractPending},
		{StatusContractPending, EventConfirmContract, StatusAuthorized},
		{StatusApproved, EventCancel, StatusCancelled},
		{StatusPending, EventAuthorizeRevision, StatusApproved},
		{StatusAuthorized, EventReplace, StatusCancelled},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, tc.on)
		require.NoError(t, err, "%s on %s", tc.from, tc.on)
		assert.Equal(t, tc.to, got)
	}
}

func TestNextRejectsIllegalTransitions(t *testing.T) {
	cases := []struct {
		from Status
		on   Event
	}{
		{StatusNegotiation, EventNegotiate},
		{StatusCancelled, EventCancel},
		{StatusArchived, EventAuthorize},
		{StatusAuthorized, EventUpdate},
		{StatusPending, EventRevise},
		{StatusClosing, EventCancelClosing},
	}
	for _, tc := range cases {
		_, err := Next(tc.from, tc.on)
		assert.ErrorIs(t, err, ErrInvalidState, "%s on %s", tc.from, tc.on)
	}
}

func TestRestore(t *testing.T) {
	got, err := Restore(StatusClosing, StatusNegotiation)
	require.NoError(t, err)
	assert.Equal(t, StatusNegotiation, got)

	_, err = Restore(StatusClosing, StatusAuthorized)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = Restore(StatusPending, StatusPending)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("en_cierre")
	require.NoError(t, err)
	assert.Equal(t, StatusClosing, s)

	_, err = ParseStatus("borrador")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestResultEnvelope(t *testing.T) {
	ok := NewResult(Ack{ID: 4}, nil)
	assert.True(t, ok.OK)
	assert.Equal(t, int64(4), ok.Data.ID)

	res := NewResult(Ack{}, ErrNotFound)
	assert.False(t, res.OK)
	assert.Equal(t, CodeNotFound, res.Code)

	internal := NewResult(Ack{}, assert.AnError)
	assert.Equal(t, CodeInternal, internal.Code)
	assert.Equal(t, "internal error", internal.Reason)
}
