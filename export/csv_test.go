package export

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/succession/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleMatches() []*core.Match {
	d := 12.3456
	return []*core.Match{
		{
			BuyerID: "b1", SellerID: "s1",
			LocationScore: 1, TaxonomyScore: 0.125, SemanticScore: 0.61234, CompositeScore: 0.572468,
			DistanceKm:        &d,
			MatchingKeywords:  []string{"Elektrofirma"},
			MatchingLocations: []string{"bayern", "münchen"},
			CreatedAt:         created,
			RunID:             "run-1",
		},
		{
			BuyerID: "b2", SellerID: "s1",
			CompositeScore:    0.3,
			MatchingKeywords:  []string{},
			MatchingLocations: []string{},
			CreatedAt:         created,
			RunID:             "run-1",
		},
	}
}

func sampleLookup() *ListingIndex {
	return NewListingIndex(
		[]*core.Listing{{ID: "b1", Role: core.RoleBuyer, Title: "Elektriker sucht Betrieb", LocationRaw: "Bayern > München", Extra: map[string]string{"url": "https://example.org/b1"}}},
		[]*core.Listing{{ID: "s1", Role: core.RoleSeller, Title: "Elektrofirma, abzugeben", LocationRaw: "Bayern, München"}},
	)
}

func TestCSVExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	e := NewCSVExporter(&buf, WithExtraColumns([]string{"url"}, nil))

	require.NoError(t, e.Export(context.Background(), sampleMatches(), sampleLookup()))
	require.NoError(t, e.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "buyer_id,buyer_title,buyer_location,buyer_url,seller_id,seller_title,seller_location,"+
		"location_score,taxonomy_score,semantic_score,composite_score,distance_km,matching_keywords,matching_locations,created_at,run_id",
		lines[0])
	assert.Equal(t, `b1,Elektriker sucht Betrieb,Bayern > München,https://example.org/b1,s1,"Elektrofirma, abzugeben","Bayern, München",`+
		`1.0000,0.1250,0.6123,0.5725,12.35,Elektrofirma,bayern; münchen,2025-03-01T12:00:00Z,run-1`,
		lines[1])
	assert.Equal(t, `b2,,,,s1,"Elektrofirma, abzugeben","Bayern, München",0.0000,0.0000,0.0000,0.3000,,,,2025-03-01T12:00:00Z,run-1`,
		lines[2])
}

func TestCSVExporter_ByteIdentical(t *testing.T) {
	render := func() string {
		var buf bytes.Buffer
		e := NewCSVExporter(&buf)
		require.NoError(t, e.Export(context.Background(), sampleMatches(), sampleLookup()))
		return buf.String()
	}
	assert.Equal(t, render(), render())
}

func TestCSVExporter_HeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	e := NewCSVExporter(&buf)
	ms := sampleMatches()
	require.NoError(t, e.Export(context.Background(), ms[:1], nil))
	require.NoError(t, e.Export(context.Background(), ms[1:], nil))
	assert.Equal(t, 1, strings.Count(buf.String(), ColBuyerID))
}

func TestCSVExporter_InvalidRecord(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*core.Match)
	}{
		{"score above one", func(m *core.Match) { m.CompositeScore = 1.2 }},
		{"nan score", func(m *core.Match) { m.SemanticScore = math.NaN() }},
		{"missing seller", func(m *core.Match) { m.SellerID = "" }},
		{"negative distance", func(m *core.Match) { d := -1.0; m.DistanceKm = &d }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := sampleMatches()
			tt.modify(ms[1])

			var buf bytes.Buffer
			err := NewCSVExporter(&buf).Export(context.Background(), ms, nil)
			require.ErrorIs(t, err, ErrInvalidRecord)
			assert.Contains(t, err.Error(), "record 1")
			assert.Empty(t, buf.String(), "nothing is written when a record is invalid")
		})
	}

	var buf bytes.Buffer
	err := NewCSVExporter(&buf).Export(context.Background(), []*core.Match{nil}, nil)
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestCSVExporter_DoesNotModifyMatches(t *testing.T) {
	ms := sampleMatches()
	before := sampleMatches()
	var buf bytes.Buffer
	require.NoError(t, NewCSVExporter(&buf).Export(context.Background(), ms, sampleLookup()))
	assert.Equal(t, before, ms)
}

func TestCSVExporter_Closed(t *testing.T) {
	var buf bytes.Buffer
	e := NewCSVExporter(&buf)
	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.Export(context.Background(), nil, nil), ErrExporterClosed)
}

func TestCreateCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "matches.csv")
	e, err := CreateCSV(path)
	require.NoError(t, err)
	require.NoError(t, e.Export(context.Background(), sampleMatches(), nil))
	require.NoError(t, e.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), ColBuyerID+","))
}

func TestReadCSV_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVExporter(&buf).Export(context.Background(), sampleMatches(), sampleLookup()))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, core.PairKey{BuyerID: "b1", SellerID: "s1"}, got[0].Key())
	assert.InDelta(t, 0.5725, got[0].CompositeScore, 1e-9)
	require.NotNil(t, got[0].DistanceKm)
	assert.InDelta(t, 12.35, *got[0].DistanceKm, 1e-9)
	assert.Equal(t, []string{"bayern", "münchen"}, got[0].MatchingLocations)
	assert.Equal(t, created, got[0].CreatedAt)
	assert.Nil(t, got[1].DistanceKm)
	assert.Empty(t, got[1].MatchingKeywords)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("buyer_id,score\nb1,0.5\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = ReadCSV(strings.NewReader("buyer_id,seller_id,composite_score\nb1,s1,abc\n"))
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.Contains(t, err.Error(), "line 2")

	_, err = ReadCSV(strings.NewReader("buyer_id,seller_id,composite_score\nb1,s1,1.5\n"))
	assert.ErrorIs(t, err, ErrInvalidRecord)

	got, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadCSV_MinimalColumns(t *testing.T) {
	got, err := ReadCSV(strings.NewReader("\ufeffseller_id,buyer_id\ns1,b1\ns2,b1\n"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, core.PairKey{BuyerID: "b1", SellerID: "s2"}, got[1].Key())
}
