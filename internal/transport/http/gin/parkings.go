package httpgin

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/service"
)

// @Summary  Parkings near a point
// @Param    latitude   query  number  true   "Latitude"
// @Param    longitude  query  number  true   "Longitude"
// @Param    radius     query  number  false  "Radius in km (default 5)"
// @Param    limit      query  int     false  "Max results (default 20)"
// @Success  200  {object}  LocationListResponse
// @Failure  400  {object}  ErrorResponse
// @Router   /parkings/nearby [get]
func handleNearby(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		lat, err := strconv.ParseFloat(c.Query("latitude"), 64)
		if err != nil {
			badRequest(c, "invalid latitude")
			return
		}
		lng, err := strconv.ParseFloat(c.Query("longitude"), 64)
		if err != nil {
			badRequest(c, "invalid longitude")
			return
		}
		radius := parseFloatDefault(c.Query("radius"), domain.DefaultRadiusKm)
		limit := parseIntDefault(c.Query("limit"), domain.DefaultSearchLimit)

		hits, err := svcs.Query.Nearby(c.Request.Context(), lat, lng, radius, limit)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, LocationListResponse{Parkings: hits, Count: len(hits)})
	}
}

// @Summary  Search parkings
// @Param    q          query  string  false  "Name, address or description"
// @Param    type       query  string  false  "public, private or residential"
// @Param    minPrice   query  number  false  "Minimum hourly rate"
// @Param    maxPrice   query  number  false  "Maximum hourly rate"
// @Param    amenities  query  string  false  "Comma separated amenities, all required"
// @Param    latitude   query  number  false  "Latitude"
// @Param    longitude  query  number  false  "Longitude"
// @Param    radius     query  number  false  "Radius in km"
// @Param    sort       query  string  false  "distance, price or rating"
// @Param    page       query  int     false  "Page, from 1"
// @Param    limit      query  int     false  "Page size"
// @Success  200  {object}  LocationListResponse
// @Failure  400  {object}  ErrorResponse
// @Router   /parkings/search [get]
func handleSearch(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := domain.SearchFilter{
			Text:  strings.TrimSpace(c.Query("q")),
			Type:  domain.ParkingType(c.Query("type")),
			Sort:  domain.SearchSort(c.Query("sort")),
			Limit: parseIntDefault(c.Query("limit"), domain.DefaultSearchLimit),
		}

		switch f.Sort {
		case domain.SortRelevance, domain.SortDistance, domain.SortPrice, domain.SortRating:
		default:
			badRequest(c, "invalid sort")
			return
		}

		var ok bool
		if f.MinPriceCents, ok = priceParam(c, "minPrice"); !ok {
			return
		}
		if f.MaxPriceCents, ok = priceParam(c, "maxPrice"); !ok {
			return
		}

		for _, raw := range c.QueryArray("amenities") {
			for _, a := range strings.Split(raw, ",") {
				if a = strings.TrimSpace(a); a != "" {
					f.Amenities = append(f.Amenities, a)
				}
			}
		}

		if c.Query("latitude") != "" || c.Query("longitude") != "" {
			lat, errLat := strconv.ParseFloat(c.Query("latitude"), 64)
			lng, errLng := strconv.ParseFloat(c.Query("longitude"), 64)
			if errLat != nil || errLng != nil {
				badRequest(c, "latitude and longitude must be given together")
				return
			}
			f.Geo = &domain.GeoPoint{
				Lat:      lat,
				Lng:      lng,
				RadiusKm: parseFloatDefault(c.Query("radius"), domain.DefaultRadiusKm),
			}
		}

		page := parseIntDefault(c.Query("page"), 1)
		if page < 1 {
			page = 1
		}
		if f.Limit > 0 {
			f.Offset = (page - 1) * min(f.Limit, domain.MaxSearchLimit)
		}

		hits, err := svcs.Query.Search(c.Request.Context(), f)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, LocationListResponse{Parkings: hits, Count: len(hits)})
	}
}

// @Summary  Get parking
// @Param    id  path  int  true  "Parking ID"
// @Success  200  {object}  domain.Location
// @Failure  404  {object}  ErrorResponse
// @Router   /parkings/{id} [get]
func handleGetParking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		loc, err := svcs.Query.Location(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, loc, "public, max-age=60")
	}
}

// @Summary  Get availability counters
// @Description  Advisory; the booking call is authoritative.
// @Param    id  path  int  true  "Parking ID"
// @Success  200  {object}  domain.Availability
// @Success  304
// @Failure  404  {object}  ErrorResponse
// @Router   /parkings/{id}/availability [get]
func handleAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		a, err := svcs.Query.Availability(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, a, "public, max-age=5")
	}
}

// priceParam reads a price in currency units and returns it in cents.
func priceParam(c *gin.Context, name string) (*int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		badRequest(c, "invalid "+name)
		return nil, false
	}

	cents := int64(math.Round(v * 100))
	return &cents, true
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func parseFloatDefault(s string, def float64) float64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}
