package engine

import (
	"bytes"
	"errors"

	"github.com/PuerkitoBio/goquery"

	"github.com/pjatk21/sigma-api/internal/deltaparser"
)

func htmlDocument(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

func asMissingToken(err error, target **deltaparser.ErrMissingToken) bool {
	return errors.As(err, target)
}
