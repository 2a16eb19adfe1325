package geo_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/Rin111124/fastfood-geo/internal/geo"
	"github.com/Rin111124/fastfood-geo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// mockHTTPClient is a mock implementation of HTTPClient for testing.
type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func newNominatim(client geo.HTTPClient) *geo.NominatimClient {
	return geo.NewNominatimClientWithClient(client, rate.NewLimiter(rate.Inf, 0), slog.Default())
}

func TestNominatimClient_GeocodeAddress(t *testing.T) {
	ctx := context.Background()

	t.Run("successful geocoding with request parameters", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, "GET", req.Method)
				assert.Contains(t, req.URL.String(), "nominatim.openstreetmap.org")
				assert.Equal(t, "8 Tôn Thất Thuyết, Hà Nội", req.URL.Query().Get("q"))
				assert.Equal(t, "jsonv2", req.URL.Query().Get("format"))
				assert.Equal(t, "1", req.URL.Query().Get("limit"))
				assert.Equal(t, "1", req.URL.Query().Get("addressdetails"))
				assert.Equal(t, "vi", req.URL.Query().Get("accept-language"))
				assert.Equal(t, "vn", req.URL.Query().Get("countrycodes"))
				assert.Contains(t, req.Header.Get("User-Agent"), "fastfood-geo")

				return jsonResponse(http.StatusOK,
					`[{"lat":"21.0278","lon":"105.8342","display_name":"8 Tôn Thất Thuyết, Hà Nội, Việt Nam"}]`), nil
			},
		}

		client := newNominatim(mockClient)
		place, err := client.GeocodeAddress(ctx, "8 Tôn Thất Thuyết, Hà Nội", geo.GeocodeOptions{Lang: "vi", Country: "vn"})

		require.NoError(t, err)
		require.NotNil(t, place)
		assert.InEpsilon(t, 21.0278, place.Location.Lat, 0.0001)
		assert.InEpsilon(t, 105.8342, place.Location.Lon, 0.0001)
		assert.Equal(t, "8 Tôn Thất Thuyết, Hà Nội, Việt Nam", place.Label)
	})

	t.Run("bias box becomes bounded viewbox", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, "1", req.URL.Query().Get("bounded"))
				box := req.URL.Query().Get("viewbox")
				require.NotEmpty(t, box)

				parts := strings.Split(box, ",")
				require.Len(t, parts, 4)
				left, _ := strconv.ParseFloat(parts[0], 64)
				top, _ := strconv.ParseFloat(parts[1], 64)
				right, _ := strconv.ParseFloat(parts[2], 64)
				bottom, _ := strconv.ParseFloat(parts[3], 64)

				// 5 km radius: about 0.0452 degrees of latitude either way.
				assert.InDelta(t, 0.0452, (top-bottom)/2, 0.001)
				assert.Less(t, left, right)
				assert.InDelta(t, 105.7854375, (left+right)/2, 0.0001)
				assert.InDelta(t, 21.0395625, (top+bottom)/2, 0.0001)

				return jsonResponse(http.StatusOK,
					`[{"lat":"21.03","lon":"105.78","display_name":"somewhere nearby"}]`), nil
			},
		}

		client := newNominatim(mockClient)
		opts := geo.GeocodeOptions{
			Bias: &geo.BiasBox{
				Center:   models.Coordinate{Lat: 21.0395625, Lon: 105.7854375},
				RadiusKm: 5,
			},
		}
		place, err := client.GeocodeAddress(ctx, "some address", opts)

		require.NoError(t, err)
		require.NotNil(t, place)
	})

	t.Run("no results returns ErrNoResult", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `[]`), nil
			},
		}

		client := newNominatim(mockClient)
		place, err := client.GeocodeAddress(ctx, "unknown address", geo.GeocodeOptions{})

		require.Error(t, err)
		require.Nil(t, place)
		assert.ErrorIs(t, err, geo.ErrNoResult)
	})

	t.Run("transport failure on every attempt returns ErrNoResult", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return nil, assert.AnError
			},
		}

		client := newNominatim(mockClient)
		place, err := client.GeocodeAddress(ctx, "Hà Nội", geo.GeocodeOptions{})

		require.Error(t, err)
		require.Nil(t, place)
		assert.ErrorIs(t, err, geo.ErrNoResult)
	})

	t.Run("invalid coordinates in response", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK,
					`[{"lat":"not-a-number","lon":"105.8342","display_name":"x"}]`), nil
			},
		}

		client := newNominatim(mockClient)
		place, err := client.GeocodeAddress(ctx, "Duong Lang", geo.GeocodeOptions{})

		// A malformed reply counts as a miss; the attempt list has no second
		// entry for an accentless query without bias, so the call exhausts.
		require.Error(t, err)
		require.Nil(t, place)
		assert.ErrorIs(t, err, geo.ErrNoResult)
	})

	t.Run("context cancellation stops retries", func(t *testing.T) {
		canceledCtx, cancel := context.WithCancel(context.Background())
		cancel()

		mockClient := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				return nil, req.Context().Err()
			},
		}

		client := newNominatim(mockClient)
		place, err := client.GeocodeAddress(canceledCtx, "Hà Nội", geo.GeocodeOptions{})

		require.Error(t, err)
		require.Nil(t, place)
	})
}

func TestNominatimClient_AccentAndBiasRelaxation(t *testing.T) {
	ctx := context.Background()

	t.Run("retries with diacritics stripped and widened box", func(t *testing.T) {
		requestCount := 0
		var boxes []string
		mockClient := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				requestCount++
				boxes = append(boxes, req.URL.Query().Get("viewbox"))

				if req.URL.Query().Get("q") == "Đường Láng, Hà Nội" {
					return jsonResponse(http.StatusOK, `[]`), nil
				}

				assert.Equal(t, "Duong Lang, Ha Noi", req.URL.Query().Get("q"))
				return jsonResponse(http.StatusOK,
					`[{"lat":"21.0167","lon":"105.8081","display_name":"Đường Láng, Hà Nội"}]`), nil
			},
		}

		client := newNominatim(mockClient)
		opts := geo.GeocodeOptions{
			Bias: &geo.BiasBox{
				Center:   models.Coordinate{Lat: 21.0395625, Lon: 105.7854375},
				RadiusKm: 5,
			},
		}
		place, err := client.GeocodeAddress(ctx, "Đường Láng, Hà Nội", opts)

		require.NoError(t, err)
		require.NotNil(t, place)
		assert.Equal(t, 2, requestCount, "should try tight then relaxed attempt")

		// Second attempt widens the 5 km radius to 25 km.
		require.Len(t, boxes, 2)
		tight := strings.Split(boxes[0], ",")
		wide := strings.Split(boxes[1], ",")
		tightTop, _ := strconv.ParseFloat(tight[1], 64)
		tightBottom, _ := strconv.ParseFloat(tight[3], 64)
		wideTop, _ := strconv.ParseFloat(wide[1], 64)
		wideBottom, _ := strconv.ParseFloat(wide[3], 64)
		assert.InDelta(t, 5.0, (wideTop-wideBottom)/(tightTop-tightBottom), 0.01)
	})

	t.Run("accentless query without bias only tries once", func(t *testing.T) {
		requestCount := 0
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				requestCount++
				return jsonResponse(http.StatusOK, `[]`), nil
			},
		}

		client := newNominatim(mockClient)
		_, err := client.GeocodeAddress(ctx, "Duong Lang", geo.GeocodeOptions{})

		require.Error(t, err)
		assert.Equal(t, 1, requestCount, "identical retry would be pointless")
	})

	t.Run("large original radius is not shrunk by the retry", func(t *testing.T) {
		requestCount := 0
		var boxes []string
		mockClient := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				requestCount++
				boxes = append(boxes, req.URL.Query().Get("viewbox"))
				return jsonResponse(http.StatusOK, `[]`), nil
			},
		}

		client := newNominatim(mockClient)
		opts := geo.GeocodeOptions{
			Bias: &geo.BiasBox{
				Center:   models.Coordinate{Lat: 21.0, Lon: 105.8},
				RadiusKm: 40,
			},
		}
		_, err := client.GeocodeAddress(ctx, "Phố Huế", opts)

		require.Error(t, err)
		require.Equal(t, 2, requestCount)
		// max(25, 40) keeps the original 40 km box on the retry.
		assert.Equal(t, boxes[0], boxes[1])
	})
}

func TestNominatimClient_ReverseGeocode(t *testing.T) {
	ctx := context.Background()
	point := models.Coordinate{Lat: 21.0278, Lon: 105.8342}

	t.Run("successful reverse geocoding", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				assert.Contains(t, req.URL.Path, "reverse")
				assert.Equal(t, "jsonv2", req.URL.Query().Get("format"))
				assert.Equal(t, "21.0278", req.URL.Query().Get("lat"))
				assert.Equal(t, "105.8342", req.URL.Query().Get("lon"))

				return jsonResponse(http.StatusOK, `{"display_name":"Hoàn Kiếm, Hà Nội, Việt Nam"}`), nil
			},
		}

		client := newNominatim(mockClient)
		place, err := client.ReverseGeocode(ctx, point, "")

		require.NoError(t, err)
		require.NotNil(t, place)
		assert.Equal(t, "Hoàn Kiếm, Hà Nội, Việt Nam", place.Label)
		assert.Equal(t, point, place.Location)
	})

	t.Run("empty display name", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `{}`), nil
			},
		}

		client := newNominatim(mockClient)
		place, err := client.ReverseGeocode(ctx, point, "")

		require.Error(t, err)
		require.Nil(t, place)
		assert.ErrorIs(t, err, geo.ErrNoResult)
	})

	t.Run("HTTP error status", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusTooManyRequests, `{"error":"rate limited"}`), nil
			},
		}

		client := newNominatim(mockClient)
		place, err := client.ReverseGeocode(ctx, point, "")

		require.Error(t, err)
		require.Nil(t, place)
		assert.Contains(t, err.Error(), "status 429")
	})
}

func TestNewNominatimClient(t *testing.T) {
	require.NotNil(t, geo.NewNominatimClient(slog.Default()))
}
