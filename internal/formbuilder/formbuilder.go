// Package formbuilder constructs the two canonical ASP.NET WebForms form
// payloads the Scrape Engine posts: the date-change form and the
// tooltip-open form, each embedding the current token triple (spec §4.B).
package formbuilder

import (
	"fmt"
	"net/url"

	"github.com/pjatk21/sigma-api/internal/model"
)

// Headers every form post must carry; the third header is what switches the
// server into partial-update ("delta") mode (spec §4.B).
const (
	HeaderUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	HeaderContentType = "application/x-www-form-urlencoded; charset=utf-8"
	HeaderAjaxDelta   = "Delta=true"
)

func withTokens(v url.Values, t model.TokenSet) url.Values {
	v.Set("__VIEWSTATE", t.ViewState)
	v.Set("__VIEWSTATEGENERATOR", t.ViewStateGenerator)
	v.Set("__EVENTVALIDATION", t.EventValidation)
	return v
}

// DateForm builds the date-change form for the given ISO (YYYY-MM-DD) day.
func DateForm(iso string, tokens model.TokenSet) url.Values {
	clientState := fmt.Sprintf(
		`{"enabled":true,"emptyMessage":"","validationText":"%s-00-00-00","valueAsString":"%s-00-00-00","minDateStr":"1980-01-01-00-00-00","maxDateStr":"2099-12-31-00-00-00","lastSetTextBoxValue":"%s"}`,
		iso, iso, iso,
	)
	v := url.Values{}
	v.Set("RadScriptManager1", "RadAjaxPanel1Panel|DataPicker")
	v.Set("__EVENTTARGET", "DataPicker")
	v.Set("__EVENTARGUMENT", "")
	v.Set("DataPicker", iso)
	v.Set("DataPicker$dateInput", iso)
	v.Set("DataPicker_ClientState", "")
	v.Set("DataPicker_dateInput_ClientState", clientState)
	v.Set("__ASYNCPOST", "true")
	v.Set("RadAJAXControlID", "RadAjaxPanel1")
	return withTokens(v, tokens)
}

// EntryForm builds the tooltip-open form for the given RawEntryId.
func EntryForm(htmlID string, tokens model.TokenSet) url.Values {
	clientState := fmt.Sprintf(`{"AjaxTargetControl":"%s","Value":"%s"}`, htmlID, htmlID)
	v := url.Values{}
	v.Set("RadScriptManager1", "RadToolTipManager1RTMPanel|RadToolTipManager1RTMPanel")
	v.Set("__EVENTTARGET", "RadToolTipManager1RTMPanel")
	v.Set("__EVENTARGUMENT", "undefined")
	v.Set("RadToolTipManager1_ClientState", clientState)
	return withTokens(v, tokens)
}
