// Package deltaparser extracts named fragments from an ASP.NET WebForms
// response: either the "|"-delimited partial-update body the server returns
// when X-MicrosoftAjax: Delta=true was set, or DOM attribute lookups against
// a full HTML page (the initial GET).
package deltaparser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pjatk21/sigma-api/internal/model"
)

// Well-known frame/element names used by the remote page (spec §4.C).
const (
	NameDatePanel    = "RadAjaxPanel1Panel"
	NameTooltipPanel = "RadToolTipManager1RTMPanel"
	NameViewState    = "__VIEWSTATE"
	NameViewStateGen = "__VIEWSTATEGENERATOR"
	NameEventVal     = "__EVENTVALIDATION"
)

// ErrMissingToken is returned when a response is missing one of the three
// anti-forgery tokens; TokensFromDelta also returns it, with Name set to the
// panel name, when the requested content panel is absent. Per spec §4.C and
// §7 this is a fatal protocol error — the caller must Quit and exit 1.
type ErrMissingToken struct {
	Name string
}

func (e *ErrMissingToken) Error() string {
	return fmt.Sprintf("deltaparser: response missing token %q", e.Name)
}

// Frame is one decoded (length, kind, name, payload) tuple from a delta
// body, in the order the server emitted them.
type Frame struct {
	Kind    string
	Name    string
	Payload string
}

// ParseDelta splits the pipe-delimited partial-update body into its frames.
// The format is `len|kind|name|payload|len|kind|name|payload|...` where len
// is the byte length of payload, expressed in ASCII decimal. A payload that
// does not match its declared length is tolerated (the server is trusted);
// only the delimiter structure is enforced.
func ParseDelta(body string) ([]Frame, error) {
	parts := strings.Split(body, "|")
	var frames []Frame
	for i := 0; i+3 < len(parts); i += 4 {
		if _, err := strconv.Atoi(parts[i]); err != nil {
			// Not a length field; the delta is malformed at this offset.
			return frames, fmt.Errorf("deltaparser: expected length field at offset %d, got %q", i, parts[i])
		}
		frames = append(frames, Frame{
			Kind:    parts[i+1],
			Name:    parts[i+2],
			Payload: parts[i+3],
		})
	}
	return frames, nil
}

// Find returns the payload of the frame whose Name equals target.
func Find(frames []Frame, target string) (string, bool) {
	for _, f := range frames {
		if f.Name == target {
			return f.Payload, true
		}
	}
	return "", false
}

// TokensFromDelta extracts the three tokens and the named content panel from
// an already-parsed delta frame list. panelName is NameDatePanel or
// NameTooltipPanel depending on which form was posted.
func TokensFromDelta(frames []Frame, panelName string) (model.TokenSet, string, error) {
	var set model.TokenSet
	var ok bool

	if set.ViewState, ok = Find(frames, NameViewState); !ok {
		return model.TokenSet{}, "", &ErrMissingToken{Name: NameViewState}
	}
	if set.ViewStateGenerator, ok = Find(frames, NameViewStateGen); !ok {
		return model.TokenSet{}, "", &ErrMissingToken{Name: NameViewStateGen}
	}
	if set.EventValidation, ok = Find(frames, NameEventVal); !ok {
		return model.TokenSet{}, "", &ErrMissingToken{Name: NameEventVal}
	}

	panel, ok := Find(frames, panelName)
	if !ok {
		return model.TokenSet{}, "", &ErrMissingToken{Name: panelName}
	}
	return set, panel, nil
}

// TokensFromHTML reads the three tokens from a full HTML document (the
// initial GET, before any delta exchange has happened) via their hidden
// input fields' value attributes.
func TokensFromHTML(doc *goquery.Document) (model.TokenSet, error) {
	var set model.TokenSet
	var ok bool

	if set.ViewState, ok = attrValue(doc, "#"+NameViewState); !ok {
		return model.TokenSet{}, &ErrMissingToken{Name: NameViewState}
	}
	if set.ViewStateGenerator, ok = attrValue(doc, "#"+NameViewStateGen); !ok {
		return model.TokenSet{}, &ErrMissingToken{Name: NameViewStateGen}
	}
	if set.EventValidation, ok = attrValue(doc, "#"+NameEventVal); !ok {
		return model.TokenSet{}, &ErrMissingToken{Name: NameEventVal}
	}
	return set, nil
}

func attrValue(doc *goquery.Document, selector string) (string, bool) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	return sel.Attr("value")
}
