package connector

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"
)

func TestConvertPersonPrefersPrimary(t *testing.T) {
	person := &people.Person{
		ResourceName: "people/c1",
		Names:        []*people.Name{{DisplayName: "Ada Lovelace"}},
		EmailAddresses: []*people.EmailAddress{
			{Value: "old@example.com"},
			{Value: "ada@example.com", Metadata: &people.FieldMetadata{Primary: true}},
		},
		PhoneNumbers:  []*people.PhoneNumber{{Value: "555-0100"}},
		Organizations: []*people.Organization{{Name: "Analytical Engines", Title: "Analyst"}},
		Metadata: &people.PersonMetadata{Sources: []*people.Source{
			{UpdateTime: "2024-01-01T00:00:00Z"},
			{UpdateTime: "2024-05-01T10:00:00Z"},
		}},
	}

	record := convertPerson(person)

	assert.Equal(t, "people/c1", record.ExternalID)
	assert.Equal(t, "ada@example.com", record.Email)
	assert.Equal(t, "555-0100", record.Phone)
	assert.Equal(t, "Analyst", record.JobTitle)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), record.UpdatedAt)
}

func TestGoogleList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/people/me/connections") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"connections":[
			{"resourceName":"people/c1","names":[{"displayName":"Ada"}],"emailAddresses":[{"value":"ada@example.com"}]},
			{"resourceName":"people/c2","names":[{"displayName":"No Email"}]}
		]}`))
	}))
	defer srv.Close()

	service, err := people.NewService(t.Context(), option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	records, err := NewGoogle(service, zap.NewNop()).List(t.Context())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "people/c1", records[0].ExternalID)
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	token := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"}

	require.NoError(t, SaveToken(path, token))
	loaded, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "refresh", loaded.RefreshToken)
}

func TestGoogleFactoryWithoutToken(t *testing.T) {
	factory := GoogleFactory(GoogleConfig{TokenPath: filepath.Join(t.TempDir(), "missing.json")}, zap.NewNop())

	_, err := factory(t.Context(), "tenant-a")
	assert.ErrorContains(t, err, "no Google token")
}

func TestOAuthConfigScopes(t *testing.T) {
	cfg := NewOAuthConfig(GoogleConfig{ClientID: "id", ClientSecret: "secret"})
	assert.Equal(t, []string{googleContactsScope}, cfg.Scopes)
	assert.Equal(t, "http://localhost:8080/oauth/callback", cfg.RedirectURL)
}
