package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/scanplan/internal/lib/geo"
	"github.com/dpup/scanplan/internal/lib/geojson"
)

var route = []geo.Point{
	{Latitude: 38.1391, Longitude: -120.4561},
	{Latitude: 38.1402, Longitude: -120.4498},
	{Latitude: 38.1350, Longitude: -120.4520},
}

func TestWriteKML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteKML(&buf, "murphys", route))

	out := buf.String()
	assert.Contains(t, out, "<name>murphys</name>")
	assert.Equal(t, len(route)+1, strings.Count(out, "<Placemark>"))
	assert.Contains(t, out, "<LineString>")
	assert.Contains(t, out, "-120.4561,38.1391")
}

func TestWriteKML_SingleStop(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteKML(&buf, "one", route[:1]))
	assert.Equal(t, 1, strings.Count(buf.String(), "<Placemark>"))
	assert.NotContains(t, buf.String(), "<LineString>")
}

func TestWritePolyline(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePolyline(&buf, route))

	line := strings.TrimSuffix(buf.String(), "\n")
	decoded, err := geo.DecodePolyline(line)
	require.NoError(t, err)
	require.Len(t, decoded, len(route))
	for i := range route {
		assert.InDelta(t, route[i].Latitude, decoded[i].Latitude, 1e-5)
		assert.InDelta(t, route[i].Longitude, decoded[i].Longitude, 1e-5)
	}
}

func TestWrite_Formats(t *testing.T) {
	for _, name := range []string{"", "geojson", "multipoint", "kml", "polyline"} {
		t.Run(name, func(t *testing.T) {
			f, err := ParseFormat(name)
			require.NoError(t, err)
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, f, "test", route))
			assert.NotZero(t, buf.Len())

			if f == FormatGeoJSON || f == FormatMultiPoint {
				points, err := geojson.ParsePoints(buf.Bytes())
				require.NoError(t, err)
				assert.Equal(t, route, points)
			}
		})
	}

	_, err := ParseFormat("shapefile")
	assert.Error(t, err)
	assert.Error(t, Write(&bytes.Buffer{}, Format("csv"), "x", route))
}
