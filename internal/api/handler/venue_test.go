package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-event-price-tracker/internal/domain/venue"
)

func TestVenueHandler(t *testing.T) {
	setup := func(svc VenueServiceInterface) *VenueHandler { return NewVenueHandler(svc) }

	t.Run("正規会場を登録できる", func(t *testing.T) {
		svc := new(MockVenueService)
		svc.On("RegisterCanonical", mock.Anything, mock.MatchedBy(func(v *venue.CanonicalVenue) bool {
			return v.Name == "Zorlu PSM" && v.City == "İstanbul"
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*venue.CanonicalVenue).ID = 5
		}).Return(nil)

		e := NewTestEcho()
		e.POST("/venues", setup(svc).Create)
		rec := postJSON(e, "/venues", `{"name":"Zorlu PSM","city":"İstanbul","capacity":2300}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp VenueResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(5), resp.ID)
		require.NotNil(t, resp.Capacity)
		assert.Equal(t, 2300, *resp.Capacity)
	})

	t.Run("名前なしは400", func(t *testing.T) {
		svc := new(MockVenueService)
		e := NewTestEcho()
		e.POST("/venues", setup(svc).Create)

		rec := postJSON(e, "/venues", `{"city":"İzmir"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "RegisterCanonical", mock.Anything, mock.Anything)
	})

	t.Run("別名を登録できる", func(t *testing.T) {
		svc := new(MockVenueService)
		svc.On("RegisterAlias", mock.Anything, "Zorlu Center", int64(5)).Return(nil)
		e := NewTestEcho()
		e.POST("/venues/aliases", setup(svc).CreateAlias)

		rec := postJSON(e, "/venues/aliases", `{"raw_name":"Zorlu Center","venue_id":5}`)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("存在しない会場への別名は404", func(t *testing.T) {
		svc := new(MockVenueService)
		svc.On("RegisterAlias", mock.Anything, "Zorlu Center", int64(9)).Return(venue.ErrVenueNotFound)
		e := NewTestEcho()
		e.POST("/venues/aliases", setup(svc).CreateAlias)

		rec := postJSON(e, "/venues/aliases", `{"raw_name":"Zorlu Center","venue_id":9}`)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("未解決の会場名一覧", func(t *testing.T) {
		svc := new(MockVenueService)
		svc.On("ListUnmatched", mock.Anything, 50, 0).Return([]venue.Unmatched{
			{Provider: "Passo", RawName: "Volkswagen Arena"},
		}, nil)
		e := NewTestEcho()
		e.GET("/venues/unmatched", setup(svc).Unmatched)

		rec := get(e, "/venues/unmatched?limit=50")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[{"provider":"Passo","raw_name":"Volkswagen Arena"}]`, rec.Body.String())
	})
}
