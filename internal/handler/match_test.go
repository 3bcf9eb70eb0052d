package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/carrymatch/internal/domain"
	"github.com/pkordes/carrymatch/internal/handler"
)

// ---- GET /matches ----------------------------------------------------------

func TestListMatches_BuildsFilter(t *testing.T) {
	viewer := uuid.New()
	tripID := uuid.New()
	var got domain.MatchFilter
	svc := &mockMatchServicer{
		list: func(_ context.Context, f domain.MatchFilter) (domain.Page[domain.MatchDetail], error) {
			got = f
			return domain.NewPage([]domain.MatchDetail{matchFixture(viewer, uuid.New(), domain.MatchCarrierAccepted)}, 1, f.Page), nil
		},
	}

	rec := do(t, newHTTPHandler(handler.Deps{Matches: svc}), http.MethodGet,
		"/matches?status=ACCEPTED&tripId="+tripID.String(), viewer, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, viewer, got.Viewer)
	assert.Equal(t, domain.ToggleAccepted, got.Toggle)
	require.NotNil(t, got.TripID)
	assert.Equal(t, tripID, *got.TripID)
	assert.Nil(t, got.ItemRequestID)
	assert.Equal(t, domain.PaginationParams{Page: 1, Limit: 10}, got.Page)

	page := decode[handler.Page[handler.Match]](t, rec)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Waiting for requester...", page.Data[0].DisplayStatus)
	assert.False(t, page.Data[0].CanAction)
}

func TestListMatches_UnknownStatusMeansAll(t *testing.T) {
	var got domain.MatchFilter
	svc := &mockMatchServicer{
		list: func(_ context.Context, f domain.MatchFilter) (domain.Page[domain.MatchDetail], error) {
			got = f
			return domain.NewPage[domain.MatchDetail](nil, 0, f.Page), nil
		},
	}

	rec := do(t, newHTTPHandler(handler.Deps{Matches: svc}), http.MethodGet, "/matches?status=whatever", uuid.New(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ToggleAll, got.Toggle)
}

func TestListMatches_422_BadTripID(t *testing.T) {
	rec := do(t, newHTTPHandler(handler.Deps{Matches: &mockMatchServicer{}}), http.MethodGet, "/matches?tripId=nope", uuid.New(), nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCountPendingMatches(t *testing.T) {
	viewer := uuid.New()
	svc := &mockMatchServicer{
		countPending: func(_ context.Context, v uuid.UUID) (int64, error) {
			require.Equal(t, viewer, v)
			return 2, nil
		},
	}

	rec := do(t, newHTTPHandler(handler.Deps{Matches: svc}), http.MethodGet, "/matches/count/pending", viewer, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[handler.CountResponse](t, rec).Count)
}

// ---- GET /matches/{id} -----------------------------------------------------

func TestGetMatch_403_Stranger(t *testing.T) {
	svc := &mockMatchServicer{
		get: func(context.Context, uuid.UUID, uuid.UUID) (domain.MatchDetail, error) {
			return domain.MatchDetail{}, fmt.Errorf("service.MatchService.Get: %w", domain.ErrUnauthorized)
		},
	}

	rec := do(t, newHTTPHandler(handler.Deps{Matches: svc}), http.MethodGet, "/matches/"+uuid.NewString(), uuid.New(), nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode[errorEnvelope](t, rec).Error.Code)
}

func TestGetMatch_ViewDependsOnViewer(t *testing.T) {
	carrier, requester := uuid.New(), uuid.New()
	d := matchFixture(carrier, requester, domain.MatchCarrierAccepted)
	svc := &mockMatchServicer{
		get: func(context.Context, uuid.UUID, uuid.UUID) (domain.MatchDetail, error) { return d, nil },
	}
	h := newHTTPHandler(handler.Deps{Matches: svc})

	asCarrier := decode[handler.Match](t, do(t, h, http.MethodGet, "/matches/"+d.ID.String(), carrier, nil))
	asRequester := decode[handler.Match](t, do(t, h, http.MethodGet, "/matches/"+d.ID.String(), requester, nil))

	assert.Equal(t, "Waiting for requester...", asCarrier.DisplayStatus)
	assert.False(t, asCarrier.CanAction)
	assert.Equal(t, "Traveler accepted! Your turn.", asRequester.DisplayStatus)
	assert.True(t, asRequester.CanAction)
	assert.Equal(t, d.Trip.ID, asRequester.Trip.ID)
	assert.Equal(t, d.Request.ID, asRequester.ItemRequest.ID)
}

// ---- PATCH /matches/{id}/status --------------------------------------------

func TestUpdateMatchStatus_200(t *testing.T) {
	carrier, requester := uuid.New(), uuid.New()
	d := matchFixture(carrier, requester, domain.MatchAccepted)
	agreed := kg("2")
	d.AgreedWeightKg = &agreed

	var gotAction domain.Action
	svc := &mockMatchServicer{
		updateStatus: func(_ context.Context, id, who uuid.UUID, a domain.Action) (domain.MatchDetail, error) {
			require.Equal(t, d.ID, id)
			require.Equal(t, requester, who)
			gotAction = a
			return d, nil
		},
	}

	rec := do(t, newHTTPHandler(handler.Deps{Matches: svc}), http.MethodPatch,
		"/matches/"+d.ID.String()+"/status", requester, map[string]string{"status": "accepted"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.ActionAccept, gotAction)
	resp := decode[handler.Match](t, rec)
	assert.Equal(t, domain.MatchAccepted, resp.Status)
	assert.Equal(t, "Matched! Coordinate now.", resp.DisplayStatus)
	require.NotNil(t, resp.AgreedWeightKg)
	assert.True(t, resp.AgreedWeightKg.Equal(agreed))
}

func TestUpdateMatchStatus_422_UnknownStatus(t *testing.T) {
	rec := do(t, newHTTPHandler(handler.Deps{Matches: &mockMatchServicer{}}), http.MethodPatch,
		"/matches/"+uuid.NewString()+"/status", uuid.New(), map[string]string{"status": "completed"})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpdateMatchStatus_409(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{domain.ErrInvalidTransition, "invalid_transition"},
		{domain.ErrInsufficientCapacity, "insufficient_capacity"},
		{domain.ErrVersionConflict, "version_conflict"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			svc := &mockMatchServicer{
				updateStatus: func(context.Context, uuid.UUID, uuid.UUID, domain.Action) (domain.MatchDetail, error) {
					return domain.MatchDetail{}, fmt.Errorf("service.MatchService.UpdateStatus: %w", tc.err)
				},
			}

			rec := do(t, newHTTPHandler(handler.Deps{Matches: svc}), http.MethodPatch,
				"/matches/"+uuid.NewString()+"/status", uuid.New(), map[string]string{"status": "rejected"})

			require.Equal(t, http.StatusConflict, rec.Code)
			assert.Equal(t, tc.code, decode[errorEnvelope](t, rec).Error.Code)
		})
	}
}

// ---- POST /matches/{id}/complete -------------------------------------------

func TestCompleteMatch_200(t *testing.T) {
	carrier := uuid.New()
	d := matchFixture(carrier, uuid.New(), domain.MatchCompleted)
	svc := &mockMatchServicer{
		complete: func(_ context.Context, id, who uuid.UUID) (domain.MatchDetail, error) {
			require.Equal(t, d.ID, id)
			require.Equal(t, carrier, who)
			return d, nil
		},
	}

	rec := do(t, newHTTPHandler(handler.Deps{Matches: svc}), http.MethodPost, "/matches/"+d.ID.String()+"/complete", carrier, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Delivered", decode[handler.Match](t, rec).DisplayStatus)
}
