package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/succession/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const buyerCSV = "\ufefftitle,description,long_description,location,Industrie,Sub-Industrie,contact details,publishing date\n" +
	"Elektriker sucht Nachfolge,Kurz,Lang,Bayern > München,Handwerk,Elektroinstallation,max@example.org,2024-05-01\n" +
	"Ohne Kontakt,,,,,,,\n"

const sellerCSV = "url,title,description,long_description,location,standort,branchen,mitarbeiter\n" +
	"https://example.org/1,Elektrofirma,Etabliert,\"Lang, mit Komma\",Bayern,München,Elektro,12\n"

func TestLoadCSV_DefaultBuyer(t *testing.T) {
	listings, err := NewLoader().LoadCSV(context.Background(), strings.NewReader(buyerCSV), core.RoleBuyer, DefaultBuyerMapping())
	require.NoError(t, err)
	require.Len(t, listings, 2)

	b := listings[0]
	assert.Equal(t, "max@example.org", b.ID)
	assert.Equal(t, core.RoleBuyer, b.Role)
	assert.Equal(t, "Elektriker sucht Nachfolge", b.Title)
	assert.Equal(t, "Kurz", b.Summary)
	assert.Equal(t, "Lang", b.LongDescription)
	assert.Equal(t, "Bayern > München", b.LocationRaw)
	assert.Equal(t, "Handwerk Elektroinstallation", b.IndustryText)
	assert.Equal(t, "2024-05-01", b.Extra["date"])
	assert.Equal(t, "max@example.org", b.Extra["contact"])

	assert.Equal(t, "1", listings[1].ID, "row index is the fallback id")
	assert.Empty(t, listings[1].LocationRaw)
}

func TestLoadCSV_DefaultSeller(t *testing.T) {
	listings, err := NewLoader().LoadCSV(context.Background(), strings.NewReader(sellerCSV), core.RoleSeller, DefaultSellerMapping())
	require.NoError(t, err)
	require.Len(t, listings, 1)

	s := listings[0]
	assert.Equal(t, "https://example.org/1", s.ID)
	assert.Equal(t, "Bayern, München", s.LocationRaw)
	assert.Equal(t, "Lang, mit Komma", s.LongDescription)
	assert.Equal(t, "Elektro", s.IndustryText)
	assert.Equal(t, "12", s.Extra["employees"])
	assert.Equal(t, "", s.Extra["revenue"], "missing columns give empty values")
	assert.Contains(t, s.Extra, "url")
	assert.NotContains(t, s.Extra, "revenue")
	assert.NoError(t, core.ValidateListing(s))
}

func TestLoadCSV_ShortRows(t *testing.T) {
	in := "title,location\nNur Titel\n"
	listings, err := NewLoader().LoadCSV(context.Background(), strings.NewReader(in), core.RoleSeller, DefaultSellerMapping())
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "Nur Titel", listings[0].Title)
	assert.Empty(t, listings[0].LocationRaw)
}

func TestLoadCSV_Errors(t *testing.T) {
	loader := NewLoader()
	ctx := context.Background()

	_, err := loader.LoadCSV(ctx, strings.NewReader(""), core.RoleBuyer, DefaultBuyerMapping())
	assert.ErrorIs(t, err, ErrNoHeader)

	_, err = loader.LoadCSV(ctx, strings.NewReader("foo,bar\n1,2\n"), core.RoleBuyer, DefaultBuyerMapping())
	assert.ErrorIs(t, err, ErrNoMappedColumns)

	_, err = loader.LoadCSV(ctx, strings.NewReader(buyerCSV), core.Role(0), DefaultBuyerMapping())
	assert.ErrorIs(t, err, core.ErrInvalidRole)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = loader.LoadCSV(cancelled, strings.NewReader(buyerCSV), core.RoleBuyer, DefaultBuyerMapping())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sellers.csv")
	require.NoError(t, os.WriteFile(path, []byte(sellerCSV), 0644))

	listings, err := NewLoader().LoadCSVFile(context.Background(), path, core.RoleSeller, DefaultSellerMapping())
	require.NoError(t, err)
	assert.Len(t, listings, 1)

	_, err = NewLoader().LoadCSVFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), core.RoleSeller, DefaultSellerMapping())
	assert.Error(t, err)
}

func TestParseMappings(t *testing.T) {
	m, err := ParseMappings([]byte(`
seller:
  id: [Inserat-Nr]
  title: [Titel]
  location: [Ort, Bundesland]
  industry: [Branche]
  extra:
    price: Kaufpreis
`))
	require.NoError(t, err)
	assert.Equal(t, DefaultBuyerMapping(), m.Buyer, "omitted side keeps defaults")
	assert.Equal(t, []string{"Inserat-Nr"}, m.Seller.ID)
	assert.Equal(t, []string{"Ort", "Bundesland"}, m.Seller.Location)
	assert.Equal(t, map[string]string{"price": "Kaufpreis"}, m.Seller.Extra)

	in := "Inserat-Nr,Titel,Ort,Bundesland,Branche,Kaufpreis\n42,Tischlerei,Augsburg,Bayern,Holz,250000\n"
	listings, err := NewLoader().LoadCSV(context.Background(), strings.NewReader(in), core.RoleSeller, m.Seller)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "42", listings[0].ID)
	assert.Equal(t, "Augsburg, Bayern", listings[0].LocationRaw)
	assert.Equal(t, "250000", listings[0].Extra["price"])

	_, err = ParseMappings([]byte("buyer: [unclosed"))
	assert.Error(t, err)
}

func TestLoadMappings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte("buyer:\n  title: [headline]\n"), 0644))

	m, err := LoadMappings(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"headline"}, m.Buyer.Title)
	assert.Equal(t, DefaultSellerMapping(), m.Seller)

	_, err = LoadMappings(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
