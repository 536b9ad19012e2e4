package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository/memory"
)

func seed(t *testing.T) (*Service, *memory.Store) {
	t.Helper()

	store := memory.New()
	store.AddLocation(domain.Location{
		Name: "Sol", Latitude: 40.4168, Longitude: -3.7038,
		TotalSpots: 10, AvailableSpots: 4, HourlyRateCents: 400,
		Rating: 4.1, IsActive: true, IsOpen: true, Amenities: []string{"ev", "covered"},
	})
	store.AddLocation(domain.Location{
		Name: "Retiro", Latitude: 40.4153, Longitude: -3.6845,
		TotalSpots: 20, AvailableSpots: 20, HourlyRateCents: 250,
		Rating: 4.7, IsActive: true, IsOpen: true, Amenities: []string{"covered"},
	})
	store.AddLocation(domain.Location{
		Name: "Toledo", Latitude: 39.8628, Longitude: -4.0273,
		TotalSpots: 5, AvailableSpots: 5, HourlyRateCents: 150,
		Rating: 3.9, IsActive: true, IsOpen: true,
	})
	store.AddLocation(domain.Location{
		Name: "Closed lot", Latitude: 40.4169, Longitude: -3.7037,
		TotalSpots: 5, AvailableSpots: 5, HourlyRateCents: 100,
		IsActive: false,
	})

	return New(store, nil, Config{}), store
}

func names(hits []domain.LocationHit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Name)
	}
	return out
}

func TestNearbyOrdersByDistance(t *testing.T) {
	svc, _ := seed(t)

	hits, err := svc.Nearby(context.Background(), 40.4168, -3.7038, 5, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"Sol", "Retiro"}, names(hits))
	require.NotNil(t, hits[0].DistanceKm)
	assert.Less(t, *hits[0].DistanceKm, *hits[1].DistanceKm)
	assert.Equal(t, 4, hits[0].AvailableSpots)

	_, err = svc.Nearby(context.Background(), 123, 0, 5, 10)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
}

func TestSearchFilters(t *testing.T) {
	svc, _ := seed(t)
	ctx := context.Background()

	hits, err := svc.Search(ctx, domain.SearchFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Retiro", "Sol", "Toledo"}, names(hits), "rating order without a point")

	hits, err = svc.Search(ctx, domain.SearchFilter{Sort: domain.SortPrice})
	require.NoError(t, err)
	assert.Equal(t, []string{"Toledo", "Retiro", "Sol"}, names(hits))

	hits, err = svc.Search(ctx, domain.SearchFilter{Amenities: []string{"ev"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Sol"}, names(hits))

	maxPrice := int64(300)
	hits, err = svc.Search(ctx, domain.SearchFilter{Text: "re", MaxPriceCents: &maxPrice})
	require.NoError(t, err)
	assert.Equal(t, []string{"Retiro"}, names(hits))

	minPrice := int64(500)
	_, err = svc.Search(ctx, domain.SearchFilter{MinPriceCents: &minPrice, MaxPriceCents: &maxPrice})
	assert.ErrorIs(t, err, ErrInvalidFilter)

	_, err = svc.Search(ctx, domain.SearchFilter{Type: "garage"})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestLocationAndAvailability(t *testing.T) {
	svc, _ := seed(t)
	ctx := context.Background()

	loc, err := svc.Location(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Retiro", loc.Name)

	a, err := svc.Availability(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, a.Available)
	assert.Equal(t, 10, a.Total)

	_, err = svc.Location(ctx, 99)
	assert.ErrorIs(t, err, ErrLocationNotFound)

	_, err = svc.Availability(ctx, 99)
	assert.ErrorIs(t, err, ErrLocationNotFound)
}
