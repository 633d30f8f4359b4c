package i18n

import (
	"net/http"
	"testing"

	"github.com/SocialGouv/champollion-go/internal/domain/results"
	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestFrenchIsDefault(t *testing.T) {
	l := FromAcceptLanguage("")
	assert.Equal(t, "fr", l.Language().String())
	assert.Equal(t, "Page non trouvée", l.StatusText(http.StatusNotFound))
	assert.Equal(t, "Chargement interrompu.", l.KindMessage(results.KindCanceled))
}

func TestEnglishNegotiation(t *testing.T) {
	l := FromAcceptLanguage("en-US,en;q=0.9")
	assert.Equal(t, "Service Unavailable", l.StatusText(http.StatusServiceUnavailable))
}

func TestUnsupportedLanguageFallsBackToFrench(t *testing.T) {
	l := New(language.German)
	assert.Equal(t, "Service indisponible", l.StatusText(http.StatusServiceUnavailable))
}

func TestUnknownStatusUsesStandardText(t *testing.T) {
	assert.Equal(t, http.StatusText(http.StatusTeapot), French().StatusText(http.StatusTeapot))
}

func TestLocalizeKeepsExistingMessage(t *testing.T) {
	e := &results.ErrorResult{Kind: results.KindNotFound, LocalizedMessage: "déjà là"}
	French().Localize(e)
	assert.Equal(t, "déjà là", e.LocalizedMessage)

	e = &results.ErrorResult{Kind: results.KindNotFound}
	French().Localize(e)
	assert.Equal(t, "Aucun établissement ne correspond à ce SIRET.", e.LocalizedMessage)
}
