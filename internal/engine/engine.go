// Package engine implements the Scrape Engine (spec §4.E): orchestrates
// scrape(date) by posting the date form, enumerating RawEntryIds from the
// resulting panel HTML, fetching each entry's tooltip with bounded
// concurrency, and publishing Entry/Finished to the bus. It is the sole
// owner and writer of the Engine's TokenSet (spec §4.A, §5).
package engine

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pjatk21/sigma-api/internal/bus"
	"github.com/pjatk21/sigma-api/internal/deltaparser"
	"github.com/pjatk21/sigma-api/internal/formbuilder"
	"github.com/pjatk21/sigma-api/internal/httpkit"
	"github.com/pjatk21/sigma-api/internal/model"
	"github.com/pjatk21/sigma-api/internal/token"
)

// RemoteURL is the single ASP.NET WebForms endpoint this worker replays
// (spec §6 "Remote target"). The protocol is identical across deployments,
// so — matching the original implementation — it is a constant, not an
// environment variable.
const RemoteURL = "https://planzajec.pjwstk.edu.pl/PlanOgolny3.aspx"

// rawEntryID matches the remote page's per-class element id (spec §3).
var rawEntryID = regexp.MustCompile(`\d+;[zr]`)

var warsawLoc, _ = time.LoadLocation("Europe/Warsaw")

// Engine drives one remote session. A single Engine instance processes
// commands strictly sequentially — it holds at most one in-flight command
// at a time (spec §5 "Ordering guarantees").
type Engine struct {
	client        *httpkit.Client
	tokens        *token.State
	bus           *bus.Bus
	logger        *zap.Logger
	concurrency   int
	interDaySleep time.Duration
	remoteURL     string
}

// New builds an Engine. concurrency is SCRAPE_CONCURRENCY (spec §6); the
// safe default is 1, per spec §4.E's open question resolution.
func New(client *httpkit.Client, b *bus.Bus, logger *zap.Logger, concurrency int, interDaySleep time.Duration) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		client:        client,
		tokens:        token.New(),
		bus:           b,
		logger:        logger,
		concurrency:   concurrency,
		interDaySleep: interDaySleep,
		remoteURL:     RemoteURL,
	}
}

// SetRemoteURL overrides the target endpoint. Production wiring never
// calls this — it exists so tests can point the Engine at a mock server.
func (e *Engine) SetRemoteURL(url string) {
	e.remoteURL = url
}

// Bootstrap performs the initial full-page GET to seed Token State before
// any date form is ever posted (spec §4.C "full HTML responses").
func (e *Engine) Bootstrap(ctx context.Context) error {
	_, body, err := e.client.Get(ctx, e.remoteURL)
	if err != nil {
		return fmt.Errorf("engine: bootstrap GET: %w", err)
	}
	doc, err := htmlDocument(body)
	if err != nil {
		return fmt.Errorf("engine: bootstrap parse: %w", err)
	}
	tokens, err := deltaparser.TokensFromHTML(doc)
	if err != nil {
		return fmt.Errorf("engine: bootstrap tokens: %w", err)
	}
	e.tokens.Update(tokens)
	return nil
}

// Scrape executes one scrape(date) call end to end (spec §4.E algorithm).
// A returned error that wraps deltaparser.ErrMissingToken is fatal per
// spec §7 and must cause the caller to Quit and exit 1.
func (e *Engine) Scrape(ctx context.Context, date time.Time) error {
	start := time.Now()

	body, err := e.enumerationBody(ctx, date, isToday(date))
	if err != nil {
		return err
	}

	ids := uniqueIDs(rawEntryID.FindAllString(body, -1))

	if err := e.fetchAll(ctx, ids); err != nil {
		return err
	}

	elapsed := time.Since(start).Seconds()
	var rate float64
	if len(ids) > 0 && elapsed > 0 {
		rate = float64(len(ids)) / elapsed
	}
	e.logger.Info("day scrape finished",
		zap.Time("date", date),
		zap.Int("entries", len(ids)),
		zap.Float64("entries_per_second", rate),
	)
	e.bus.Publish(model.BusMessage{Kind: model.KindFinished})

	if e.interDaySleep > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(e.interDaySleep):
		}
	}
	return nil
}

// enumerationBody posts the date form (unless today is true, per the
// today-shortcut, spec §4.B/§8 scenario 2) and returns the HTML body to
// enumerate RawEntryIds from.
func (e *Engine) enumerationBody(ctx context.Context, date time.Time, today bool) (string, error) {
	if today {
		_, body, err := e.client.Get(ctx, e.remoteURL)
		if err != nil {
			return "", fmt.Errorf("engine: today GET: %w", err)
		}
		return string(body), nil
	}

	iso := date.Format("2006-01-02")
	form := formbuilder.DateForm(iso, e.tokens.Snapshot())
	_, body, err := e.client.PostForm(ctx, e.remoteURL, form)
	if err != nil {
		e.logger.Warn("date form post failed, entry dropped for day", zap.Error(err))
		return "", nil
	}

	frames, err := deltaparser.ParseDelta(string(body))
	if err != nil {
		return "", fmt.Errorf("engine: date delta: %w", err)
	}
	tokens, panel, err := deltaparser.TokensFromDelta(frames, deltaparser.NameDatePanel)
	if err != nil {
		return "", err
	}
	e.tokens.Update(tokens)
	return panel, nil
}

// fetchAll runs fetchEntry for every id with at most e.concurrency in
// flight at once (spec §4.E step 4, §5 "Suspension points").
func (e *Engine) fetchAll(ctx context.Context, ids []string) error {
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var fatalErr error

	for _, id := range ids {
		if fatal := func() bool {
			mu.Lock()
			defer mu.Unlock()
			return fatalErr != nil
		}(); fatal {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := e.fetchEntry(ctx, id); err != nil {
				if isFatal(err) {
					mu.Lock()
					if fatalErr == nil {
						fatalErr = err
					}
					mu.Unlock()
					return
				}
				e.logger.Warn("entry fetch failed, dropped", zap.String("html_id", id), zap.Error(err))
			}
			// Yield briefly between iterations for fairness, matching the
			// original's small explicit sleep under busy fan-out (spec §5).
			time.Sleep(250 * time.Nanosecond)
		}(id)
	}
	wg.Wait()
	return fatalErr
}

func (e *Engine) fetchEntry(ctx context.Context, htmlID string) error {
	form := formbuilder.EntryForm(htmlID, e.tokens.Snapshot())
	_, body, err := e.client.PostForm(ctx, e.remoteURL, form)
	if err != nil {
		return fmt.Errorf("entry %s post: %w", htmlID, err)
	}

	frames, err := deltaparser.ParseDelta(string(body))
	if err != nil {
		return fmt.Errorf("entry %s delta: %w", htmlID, err)
	}
	tokens, panel, err := deltaparser.TokensFromDelta(frames, deltaparser.NameTooltipPanel)
	if err != nil {
		return err
	}
	e.tokens.Update(tokens)

	e.bus.Publish(model.BusMessage{
		Kind: model.KindEntry,
		Entry: model.UploadEntry{
			HTMLID: htmlID,
			Body:   panel,
		},
	})
	return nil
}

// isToday reports whether date falls on the current calendar day in the
// Europe/Warsaw civil zone — the basis for the date-form skip optimization
// (spec §4.B).
func isToday(date time.Time) bool {
	loc := warsawLoc
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	d := date.In(loc)
	ny, nm, nd := now.Date()
	dy, dm, dd := d.Date()
	return ny == dy && nm == dm && nd == dd
}

// RunLoop subscribes to the bus and processes Command messages strictly
// sequentially — the Engine holds exactly one in-flight command at a time
// (spec §5). It returns when it observes Quit or the bus closes. A fatal
// protocol error returned from Scrape (missing token) stops the loop and
// is returned to the caller, which must translate it to exit code 1.
func (e *Engine) RunLoop(ctx context.Context) error {
	sub := e.bus.Subscribe()
	defer e.bus.Unsubscribe(sub)

	for msg := range sub {
		switch msg.Kind {
		case model.KindCommand:
			if err := e.Scrape(ctx, msg.Command.ScrapUntil); err != nil {
				return err
			}
		case model.KindQuit:
			return nil
		}
	}
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func isFatal(err error) bool {
	var missing *deltaparser.ErrMissingToken
	return asMissingToken(err, &missing)
}
