// Package i18n holds the localized texts shown to inspectors: error messages
// per failure kind and HTTP status texts for the page-level error view.
package i18n

import (
	"fmt"
	"net/http"

	"github.com/SocialGouv/champollion-go/internal/domain/results"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var supported = []language.Tag{language.French, language.English}

var matcher = language.NewMatcher(supported)

type entry struct {
	fr string
	en string
}

var kindMessages = map[results.Kind]entry{
	results.KindNotFound:           {"Aucun établissement ne correspond à ce SIRET.", "No establishment matches this SIRET."},
	results.KindValidation:         {"La requête est invalide.", "The request is invalid."},
	results.KindRateLimited:        {"Trop de données ou trop de requêtes, veuillez réessayer plus tard.", "Too much data or too many requests, please try again later."},
	results.KindCanceled:           {"Chargement interrompu.", "Loading interrupted."},
	results.KindNetworkUnreachable: {"Le service est injoignable.", "The service is unreachable."},
	results.KindUnknown:            {"Une erreur inattendue est survenue.", "An unexpected error occurred."},
}

var statusTexts = map[int]entry{
	http.StatusBadRequest:            {"Requête invalide", "Bad Request"},
	http.StatusUnauthorized:          {"Non authentifié", "Unauthorized"},
	http.StatusForbidden:             {"Accès refusé", "Forbidden"},
	http.StatusNotFound:              {"Page non trouvée", "Not Found"},
	http.StatusRequestEntityTooLarge: {"Requête trop volumineuse", "Request Entity Too Large"},
	http.StatusUnprocessableEntity:   {"Requête non traitable", "Unprocessable Entity"},
	http.StatusTooManyRequests:       {"Trop de requêtes", "Too Many Requests"},
	http.StatusInternalServerError:   {"Erreur interne du serveur", "Internal Server Error"},
	http.StatusBadGateway:            {"Mauvaise passerelle", "Bad Gateway"},
	http.StatusServiceUnavailable:    {"Service indisponible", "Service Unavailable"},
	http.StatusGatewayTimeout:        {"Délai d'attente dépassé", "Gateway Timeout"},
}

var cat = buildCatalog()

func kindKey(kind results.Kind) string { return "kind." + string(kind) }

func statusKey(status int) string { return fmt.Sprintf("status.%d", status) }

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.French))
	set := func(key string, e entry) {
		_ = b.SetString(language.French, key, e.fr)
		_ = b.SetString(language.English, key, e.en)
	}
	for kind, e := range kindMessages {
		set(kindKey(kind), e)
	}
	for status, e := range statusTexts {
		set(statusKey(status), e)
	}
	return b
}

// Localizer renders texts in one language.
type Localizer struct {
	tag     language.Tag
	printer *message.Printer
}

// New returns a localizer for tag, falling back to French.
func New(tag language.Tag) *Localizer {
	matched, _, _ := matcher.Match(tag)
	base, _ := matched.Base()
	tag, _ = language.Compose(base)
	return &Localizer{tag: tag, printer: message.NewPrinter(tag, message.Catalog(cat))}
}

// French is the default localizer.
func French() *Localizer {
	return New(language.French)
}

// FromAcceptLanguage picks the best supported language from a header value.
func FromAcceptLanguage(header string) *Localizer {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return French()
	}
	matched, _, _ := matcher.Match(tags...)
	return New(matched)
}

// Language returns the tag texts are rendered in.
func (l *Localizer) Language() language.Tag {
	return l.tag
}

// KindMessage returns the localized message for a failure kind.
func (l *Localizer) KindMessage(kind results.Kind) string {
	if _, ok := kindMessages[kind]; !ok {
		kind = results.KindUnknown
	}
	return l.printer.Sprintf(kindKey(kind))
}

// StatusText returns the localized HTTP status text.
func (l *Localizer) StatusText(status int) string {
	if _, ok := statusTexts[status]; !ok {
		return http.StatusText(status)
	}
	return l.printer.Sprintf(statusKey(status))
}

// Localize fills LocalizedMessage on e when missing.
func (l *Localizer) Localize(e *results.ErrorResult) *results.ErrorResult {
	if e != nil && e.LocalizedMessage == "" {
		e.LocalizedMessage = l.KindMessage(e.Kind)
	}
	return e
}
