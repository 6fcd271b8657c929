package quotes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassToClosingArchivesOpenSiblings(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "A")
	b := f.create(t, "B")
	c := f.create(t, "C")
	_, err := f.svc.Negotiate(context.Background(), NegotiationInput{QuotationID: c.ID, Price: 200})
	require.NoError(t, err)

	ack, err := f.svc.PassToClosing(context.Background(), a.ID, &ClosingOptions{Notes: strPtr("firma el viernes")})
	require.NoError(t, err)
	assert.Equal(t, a.ID, ack.ID)

	assert.Equal(t, StatusClosing, f.quotation(t, a.ID).Status)
	for _, id := range []int64{b.ID, c.ID} {
		sib := f.quotation(t, id)
		assert.True(t, sib.Archived)
		assert.NotEqual(t, StatusArchived, sib.Status)
	}

	rec := f.repo.closings[a.ID]
	assert.Equal(t, StatusPending, rec.PriorStatus)
	assert.Equal(t, []int64{b.ID, c.ID}, rec.ArchivedSiblingIDs)
	require.NotNil(t, rec.Notes)
	assert.Equal(t, "firma el viernes", *rec.Notes)
	assert.Contains(t, f.history.actions(), "quotation.closing_started")
}

func TestPassToClosingOnePerDeal(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "A")
	_, err := f.svc.PassToClosing(context.Background(), a.ID, nil)
	require.NoError(t, err)

	b := f.create(t, "B")
	_, err = f.svc.PassToClosing(context.Background(), b.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StatusPending, f.quotation(t, b.ID).Status)
}

func TestPassToClosingRejectsArchivedAndAuthorized(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "A")
	b := f.create(t, "B")
	_, err := f.svc.PassToClosing(context.Background(), a.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.PassToClosing(context.Background(), b.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.CancelClosing(context.Background(), a.ID, false)
	require.NoError(t, err)
	f.authorize(t, a.ID, 100)
	_, err = f.svc.PassToClosing(context.Background(), a.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPassToClosingUnknownCondition(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "A")

	_, err := f.svc.PassToClosing(context.Background(), a.ID, &ClosingOptions{ConditionID: int64Ptr(77)})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, StatusPending, f.quotation(t, a.ID).Status)
}

func TestCancelClosingRestoresPriorStatusAndSiblings(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "A")
	b := f.create(t, "B")
	_, err := f.svc.Negotiate(context.Background(), NegotiationInput{QuotationID: a.ID, Price: 200})
	require.NoError(t, err)
	_, err = f.svc.PassToClosing(context.Background(), a.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.CancelClosing(context.Background(), a.ID, true)
	require.NoError(t, err)

	assert.Equal(t, StatusNegotiation, f.quotation(t, a.ID).Status)
	assert.False(t, f.quotation(t, b.ID).Archived)
	assert.NotContains(t, f.repo.closings, a.ID)
	assert.Contains(t, f.history.actions(), "quotation.closing_cancelled")
}

func TestCancelClosingKeepsSiblingArchivedWhenNameWasReused(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "A")
	b := f.create(t, "B")
	c := f.create(t, "C")
	_, err := f.svc.PassToClosing(context.Background(), a.ID, nil)
	require.NoError(t, err)
	reused := f.create(t, "b")

	_, err = f.svc.CancelClosing(context.Background(), a.ID, true)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, f.quotation(t, a.ID).Status)
	assert.True(t, f.quotation(t, b.ID).Archived)
	assert.False(t, f.quotation(t, c.ID).Archived)
	assert.False(t, f.quotation(t, reused.ID).Archived)
	assert.NotContains(t, f.repo.closings, a.ID)

	var restored any
	for _, e := range f.history.entries {
		if e.Action == "quotation.closing_cancelled" {
			restored = e.Meta["restored_siblings"]
		}
	}
	assert.Equal(t, []int64{c.ID}, restored)
}

func TestCancelClosingLeavesSiblingsArchivedByDefault(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "A")
	b := f.create(t, "B")
	_, err := f.svc.PassToClosing(context.Background(), a.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.CancelClosing(context.Background(), a.ID, false)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, f.quotation(t, a.ID).Status)
	assert.True(t, f.quotation(t, b.ID).Archived)
}

func TestCancelClosingWithoutRecordFallsBackToPending(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "A")
	_, err := f.svc.PassToClosing(context.Background(), a.ID, nil)
	require.NoError(t, err)
	delete(f.repo.closings, a.ID)

	_, err = f.svc.CancelClosing(context.Background(), a.ID, true)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, f.quotation(t, a.ID).Status)
}

func TestCancelClosingRequiresClosingStatus(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "A")

	_, err := f.svc.CancelClosing(context.Background(), a.ID, false)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAuthorizeFromClosingDropsRecord(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "A")
	b := f.create(t, "B")
	_, err := f.svc.PassToClosing(context.Background(), a.ID, nil)
	require.NoError(t, err)

	f.authorize(t, a.ID, 300)

	assert.NotContains(t, f.repo.closings, a.ID)
	assert.Equal(t, StatusContractPending, f.quotation(t, a.ID).Status)
	assert.Equal(t, StatusArchived, f.quotation(t, b.ID).Status)
}

func TestCancelFromClosingDropsRecord(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "A")
	_, err := f.svc.PassToClosing(context.Background(), a.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), a.ID)
	require.NoError(t, err)
	assert.NotContains(t, f.repo.closings, a.ID)

	b := f.create(t, "B")
	_, err = f.svc.PassToClosing(context.Background(), b.ID, nil)
	require.NoError(t, err)
}
